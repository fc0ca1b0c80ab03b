package gateway_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/gateway"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tr64desc = `<?xml version="1.0"?>
<root xmlns="urn:dslforum-org:device-1-0">
  <systemVersion>
    <HW>154</HW><Major>7</Major><Minor>29</Minor><Patch></Patch>
    <Buildnumber>86270</Buildnumber><Display>154.07.29</Display>
  </systemVersion>
  <device>
    <deviceType>urn:dslforum-org:device:InternetGatewayDevice:1</deviceType>
    <friendlyName>FRITZ!Box 7590</friendlyName>
    <modelName>FRITZ!Box 7590</modelName>
    <serviceList>
      <service>
        <serviceType>urn:dslforum-org:service:DeviceInfo:1</serviceType>
        <serviceId>urn:DeviceInfo-com:serviceId:DeviceInfo1</serviceId>
        <controlURL>/upnp/control/deviceinfo</controlURL>
        <eventSubURL>/upnp/control/deviceinfo</eventSubURL>
        <SCPDURL>/deviceinfoSCPD.xml</SCPDURL>
      </service>
    </serviceList>
    <deviceList>
      <device>
        <deviceType>urn:dslforum-org:device:LANDevice:1</deviceType>
        <serviceList>
          <service>
            <serviceType>urn:dslforum-org:service:Hosts:1</serviceType>
            <serviceId>urn:LanDeviceHosts-com:serviceId:Hosts1</serviceId>
            <controlURL>/upnp/control/hosts</controlURL>
            <eventSubURL>/upnp/control/hosts</eventSubURL>
            <SCPDURL>/hostsSCPD.xml</SCPDURL>
          </service>
        </serviceList>
      </device>
    </deviceList>
  </device>
</root>`

const deviceInfoSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:dslforum-org:service-1-0">
  <actionList>
    <action>
      <name>GetInfo</name>
      <argumentList>
        <argument><name>NewModelName</name><direction>out</direction><relatedStateVariable>ModelName</relatedStateVariable></argument>
        <argument><name>NewUpTime</name><direction>out</direction><relatedStateVariable>UpTime</relatedStateVariable></argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable><name>ModelName</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>UpTime</name><dataType>ui4</dataType></stateVariable>
  </serviceStateTable>
</scpd>`

const hostsSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:dslforum-org:service-1-0">
  <actionList>
    <action>
      <name>GetGenericHostEntry</name>
      <argumentList>
        <argument><name>NewIndex</name><direction>in</direction><relatedStateVariable>HostNumberOfEntries</relatedStateVariable></argument>
        <argument><name>NewIPAddress</name><direction>out</direction><relatedStateVariable>IPAddress</relatedStateVariable></argument>
        <argument><name>NewMACAddress</name><direction>out</direction><relatedStateVariable>MACAddress</relatedStateVariable></argument>
        <argument><name>NewHostName</name><direction>out</direction><relatedStateVariable>HostName</relatedStateVariable></argument>
        <argument><name>NewInterfaceType</name><direction>out</direction><relatedStateVariable>InterfaceType</relatedStateVariable></argument>
        <argument><name>NewActive</name><direction>out</direction><relatedStateVariable>Active</relatedStateVariable></argument>
      </argumentList>
    </action>
    <action>
      <name>GetHostNumberOfEntries</name>
      <argumentList>
        <argument><name>NewHostNumberOfEntries</name><direction>out</direction><relatedStateVariable>HostNumberOfEntries</relatedStateVariable></argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable><name>HostNumberOfEntries</name><dataType>ui2</dataType></stateVariable>
    <stateVariable><name>IPAddress</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>MACAddress</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>HostName</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>InterfaceType</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>Active</name><dataType>boolean</dataType></stateVariable>
  </serviceStateTable>
</scpd>`

const igddesc = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <deviceType>urn:schemas-upnp-org:device:InternetGatewayDevice:1</deviceType>
    <modelName>FRITZ!Box 7590</modelName>
    <deviceList>
      <device>
        <deviceType>urn:schemas-upnp-org:device:WANDevice:1</deviceType>
        <serviceList>
          <service>
            <serviceType>urn:schemas-upnp-org:service:WANCommonInterfaceConfig:1</serviceType>
            <serviceId>urn:upnp-org:serviceId:WANCommonIFC1</serviceId>
            <controlURL>/igdupnp/control/WANCommonIFC1</controlURL>
            <eventSubURL>/igdupnp/control/WANCommonIFC1</eventSubURL>
            <SCPDURL>/igdicfgSCPD.xml</SCPDURL>
          </service>
        </serviceList>
        <deviceList>
          <device>
            <deviceType>urn:schemas-upnp-org:device:WANConnectionDevice:1</deviceType>
            <serviceList>
              <service>
                <serviceType>urn:schemas-upnp-org:service:WANIPConnection:1</serviceType>
                <serviceId>urn:upnp-org:serviceId:WANIPConn1</serviceId>
                <controlURL>/igdupnp/control/WANIPConn1</controlURL>
                <eventSubURL>/igdupnp/control/WANIPConn1</eventSubURL>
                <SCPDURL>/igdconnSCPD.xml</SCPDURL>
              </service>
              <service>
                <serviceType>urn:schemas-upnp-org:service:DeviceInfo:1</serviceType>
                <serviceId>urn:upnp-org:serviceId:DeviceInfo1</serviceId>
                <controlURL>/igdupnp/control/deviceinfo</controlURL>
                <eventSubURL>/igdupnp/control/deviceinfo</eventSubURL>
                <SCPDURL>/igddeviceinfoSCPD.xml</SCPDURL>
              </service>
            </serviceList>
          </device>
        </deviceList>
      </device>
    </deviceList>
  </device>
</root>`

const commonIFCSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action>
      <name>GetAddonInfos</name>
      <argumentList>
        <argument><name>NewByteSendRate</name><direction>out</direction><relatedStateVariable>ByteSendRate</relatedStateVariable></argument>
        <argument><name>NewDNSServer1</name><direction>out</direction><relatedStateVariable>DNSServer1</relatedStateVariable></argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable><name>ByteSendRate</name><dataType>ui4</dataType></stateVariable>
    <stateVariable><name>DNSServer1</name><dataType>string</dataType></stateVariable>
  </serviceStateTable>
</scpd>`

const ipConnSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action>
      <name>GetStatusInfo</name>
      <argumentList>
        <argument><name>NewConnectionStatus</name><direction>out</direction><relatedStateVariable>ConnectionStatus</relatedStateVariable></argument>
        <argument><name>NewUptime</name><direction>out</direction><relatedStateVariable>Uptime</relatedStateVariable></argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable><name>ConnectionStatus</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>Uptime</name><dataType>ui4</dataType></stateVariable>
  </serviceStateTable>
</scpd>`

const responseTemplate = `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>
<u:%[1]sResponse xmlns:u="%[2]s">
%[3]s
</u:%[1]sResponse>
</s:Body>
</s:Envelope>`

const faultTemplate = `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>
<s:Fault>
<faultcode>s:Client</faultcode>
<faultstring>UPnPError</faultstring>
<detail>
<UPnPError xmlns="urn:dslforum-org:control-1-0">
<errorCode>%d</errorCode>
<errorDescription>%s</errorDescription>
</UPnPError>
</detail>
</s:Fault>
</s:Body>
</s:Envelope>`

var indexPattern = regexp.MustCompile(`<NewIndex>(\d+)</NewIndex>`)

type fakeRouter struct {
	descFailures atomic.Int32
	descRequests atomic.Int32
	hosts        []string
	noIGD        bool
	igdFails     bool
}

func (f *fakeRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/tr64desc.xml":
		f.descRequests.Add(1)
		if f.descFailures.Load() > 0 {
			f.descFailures.Add(-1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, tr64desc)
	case "/igddesc.xml":
		switch {
		case f.noIGD:
			http.NotFound(w, r)
		case f.igdFails:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			io.WriteString(w, igddesc)
		}
	case "/igdicfgSCPD.xml":
		io.WriteString(w, commonIFCSCPD)
	case "/igdconnSCPD.xml":
		io.WriteString(w, ipConnSCPD)
	case "/igdupnp/control/WANCommonIFC1":
		fmt.Fprintf(w, responseTemplate, "GetAddonInfos", "urn:schemas-upnp-org:service:WANCommonInterfaceConfig:1",
			"<NewByteSendRate>2048</NewByteSendRate><NewDNSServer1>192.0.2.53</NewDNSServer1>")
	case "/igdupnp/control/WANIPConn1":
		fmt.Fprintf(w, responseTemplate, "GetStatusInfo", "urn:schemas-upnp-org:service:WANIPConnection:1",
			"<NewConnectionStatus>Connected</NewConnectionStatus><NewUptime>3600</NewUptime>")
	case "/deviceinfoSCPD.xml":
		io.WriteString(w, deviceInfoSCPD)
	case "/hostsSCPD.xml":
		io.WriteString(w, hostsSCPD)
	case "/upnp/control/deviceinfo":
		if !strings.Contains(r.Header.Get("SoapAction"), "urn:dslforum-org:service:DeviceInfo:1#GetInfo") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, responseTemplate, "GetInfo", "urn:dslforum-org:service:DeviceInfo:1",
			"<NewModelName>FRITZ!Box 7590</NewModelName><NewUpTime>12345</NewUpTime>")
	case "/upnp/control/hosts":
		body, _ := io.ReadAll(r.Body)
		m := indexPattern.FindSubmatch(body)
		if m == nil {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, faultTemplate, 402, "Invalid Args")
			return
		}
		index, _ := strconv.Atoi(string(m[1]))
		if index >= len(f.hosts) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, faultTemplate, 713, "SpecifiedArrayIndexInvalid")
			return
		}
		fmt.Fprintf(w, responseTemplate, "GetGenericHostEntry", "urn:dslforum-org:service:Hosts:1", f.hosts[index])
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, router *fakeRouter, opts ...gateway.Option) *gateway.Client {
	t.Helper()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)

	client, err := gateway.New(gateway.Config{
		Address: host,
		Port:    portNum,
		Timeout: 2 * time.Second,
	}, logger.Nop(), opts...)
	require.NoError(t, err)

	return client
}

func hostXML(ip, iface string, active bool) string {
	a := 0
	if active {
		a = 1
	}
	return fmt.Sprintf("<NewIPAddress>%s</NewIPAddress><NewMACAddress>00:11:22:33:44:55</NewMACAddress>"+
		"<NewHostName>host</NewHostName><NewInterfaceType>%s</NewInterfaceType><NewActive>%d</NewActive>", ip, iface, a)
}

func TestCallConvertsTypes(t *testing.T) {
	client := newTestClient(t, &fakeRouter{})

	answer, err := client.Call(context.Background(), "DeviceInfo1", "GetInfo", nil)
	require.NoError(t, err)

	assert.Equal(t, gateway.Answer{
		"NewModelName": "FRITZ!Box 7590",
		"NewUpTime":    int64(12345),
	}, answer)
}

func TestHostEntry(t *testing.T) {
	router := &fakeRouter{hosts: []string{
		hostXML("192.168.178.20", "Ethernet", true),
		hostXML("192.168.178.21", "802.11", false),
	}}
	client := newTestClient(t, router)
	ctx := context.Background()

	entry, err := client.HostEntry(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "192.168.178.20", entry.IPAddress)
	assert.Equal(t, gateway.InterfaceEthernet, entry.InterfaceType)
	assert.True(t, entry.Active)

	entry, err = client.HostEntry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, gateway.InterfaceWLAN, entry.InterfaceType)
	assert.False(t, entry.Active)

	_, err = client.HostEntry(ctx, 2)
	assert.ErrorIs(t, err, gateway.ErrEndOfList)
}

func TestFirmwareVersion(t *testing.T) {
	client := newTestClient(t, &fakeRouter{})

	version, err := client.FirmwareVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "154.07.29", version)
}

func TestUnknownServiceAndAction(t *testing.T) {
	client := newTestClient(t, &fakeRouter{})
	ctx := context.Background()

	_, err := client.Call(ctx, "WANDSLInterfaceConfig1", "GetInfo", nil)
	assert.True(t, errors.HasCode(err, gateway.ErrUnknownService), "got %v", err)

	_, err = client.Call(ctx, "DeviceInfo1", "GetSecurityPort", nil)
	assert.True(t, errors.HasCode(err, gateway.ErrUnknownAction), "got %v", err)
}

func TestFaultIsReported(t *testing.T) {
	client := newTestClient(t, &fakeRouter{})

	_, err := client.Call(context.Background(), "Hosts1", "GetGenericHostEntry", nil)
	require.Error(t, err)

	var fault *gateway.FaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, 402, fault.Code)
	assert.False(t, fault.IsIndexFault())
	assert.True(t, errors.HasCode(err, gateway.ErrFault))
}

func TestDescriptionIsRetriedAfterBackoff(t *testing.T) {
	router := &fakeRouter{}
	router.descFailures.Store(1)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, router, gateway.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := client.Call(ctx, "DeviceInfo1", "GetInfo", nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, gateway.ErrDescriptionFailed), "got %v", err)

	_, err = client.HostEntry(ctx, 0)
	assert.True(t, errors.HasCode(err, gateway.ErrDescriptionFailed), "got %v", err)
	_, err = client.FirmwareVersion(ctx)
	assert.Error(t, err)
	assert.Equal(t, int32(1), router.descRequests.Load(), "failure is cached during the backoff")

	now = now.Add(time.Minute)
	answer, err := client.Call(ctx, "DeviceInfo1", "GetInfo", nil)
	require.NoError(t, err)
	assert.Equal(t, "FRITZ!Box 7590", answer["NewModelName"])
	assert.Equal(t, int32(2), router.descRequests.Load())
}

func TestIGDServicesResolve(t *testing.T) {
	client := newTestClient(t, &fakeRouter{})
	ctx := context.Background()

	answer, err := client.Call(ctx, "WANCommonIFC1", "GetAddonInfos", nil)
	require.NoError(t, err)
	assert.Equal(t, gateway.Answer{
		"NewByteSendRate": int64(2048),
		"NewDNSServer1":   "192.0.2.53",
	}, answer)

	answer, err = client.Call(ctx, "WANIPConn1", "GetStatusInfo", nil)
	require.NoError(t, err)
	assert.Equal(t, "Connected", answer["NewConnectionStatus"])
	assert.Equal(t, int64(3600), answer["NewUptime"])
}

func TestTR64ServiceWinsOverIGD(t *testing.T) {
	client := newTestClient(t, &fakeRouter{})

	answer, err := client.Call(context.Background(), "DeviceInfo1", "GetInfo", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), answer["NewUpTime"])
}

func TestIGDDescriptionIsOptional(t *testing.T) {
	client := newTestClient(t, &fakeRouter{noIGD: true})
	ctx := context.Background()

	_, err := client.Call(ctx, "DeviceInfo1", "GetInfo", nil)
	require.NoError(t, err)

	_, err = client.Call(ctx, "WANCommonIFC1", "GetAddonInfos", nil)
	assert.True(t, errors.HasCode(err, gateway.ErrUnknownService), "got %v", err)
}

func TestIGDDescriptionFailureFailsLoad(t *testing.T) {
	client := newTestClient(t, &fakeRouter{igdFails: true})

	_, err := client.Call(context.Background(), "DeviceInfo1", "GetInfo", nil)
	assert.True(t, errors.HasCode(err, gateway.ErrDescriptionFailed), "got %v", err)
}

func TestUnreachableRouter(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	portNum, _ := strconv.Atoi(port)

	client, err := gateway.New(gateway.Config{Address: host, Port: portNum, Timeout: time.Second}, logger.Nop())
	require.NoError(t, err, "construction performs no I/O")

	_, err = client.FirmwareVersion(context.Background())
	assert.Error(t, err)
	assert.Error(t, client.Connect(context.Background()))
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := gateway.New(gateway.Config{Port: 49000}, logger.Nop())
	assert.True(t, errors.HasCode(err, gateway.ErrInvalidConfig))
}
