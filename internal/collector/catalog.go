package collector

// Answer names.
const (
	answerDeviceInfo     = "deviceInfo"
	answerConnectionInfo = "connectionInfo"
	answerWANInfo        = "wanInfo"
	answerTrafficInfo    = "trafficInfo"
	answerDSLInfo        = "dslInfo"
	answerDSLError       = "dslError"
	answerDHCPInfo       = "dhcpInfo"
	answerLANStat        = "lanStat"
	answerWLANStat24     = "wlanStat24"
	answerWLANStat50     = "wlanStat50"
	answerWLANStatGuest  = "wlanStatGuest"
	answerWLANInfo24     = "wlanInfo24"
	answerWLANInfo50     = "wlanInfo50"
	answerWLANInfoGuest  = "wlanInfoGuest"
	answerWLANAssoc24    = "wlanAssoc24"
	answerWLANAssoc50    = "wlanAssoc50"
	answerWLANAssocGuest = "wlanAssocGuest"
	answerUserInterface  = "userInterface"
)

// catalog lists the endpoints read every cycle, in call order.
var catalog = []EndpointSpec{
	{Name: answerDeviceInfo, Service: "DeviceInfo1", Action: "GetInfo"},
	{Name: answerWANInfo, Service: "WANCommonIFC1", Action: "GetCommonLinkProperties"},
	{Name: answerTrafficInfo, Service: "WANCommonIFC1", Action: "GetAddonInfos"},
	{Name: answerDSLInfo, Service: "WANDSLInterfaceConfig1", Action: "GetInfo"},
	{Name: answerDSLError, Service: "WANDSLInterfaceConfig1", Action: "GetStatisticsTotal"},
	{Name: answerDHCPInfo, Service: "Hosts1", Action: "GetHostNumberOfEntries"},
	{Name: answerLANStat, Service: "LANEthernetInterfaceConfig1", Action: "GetStatistics"},
	{Name: answerWLANStat24, Service: "WLANConfiguration1", Action: "GetStatistics"},
	{Name: answerWLANStat50, Service: "WLANConfiguration2", Action: "GetStatistics"},
	{Name: answerWLANStatGuest, Service: "WLANConfiguration3", Action: "GetStatistics"},
	{Name: answerWLANInfo24, Service: "WLANConfiguration1", Action: "GetInfo"},
	{Name: answerWLANInfo50, Service: "WLANConfiguration2", Action: "GetInfo"},
	{Name: answerWLANInfoGuest, Service: "WLANConfiguration3", Action: "GetInfo"},
	{Name: answerWLANAssoc24, Service: "WLANConfiguration1", Action: "GetTotalAssociations"},
	{Name: answerWLANAssoc50, Service: "WLANConfiguration2", Action: "GetTotalAssociations"},
	{Name: answerWLANAssocGuest, Service: "WLANConfiguration3", Action: "GetTotalAssociations"},
	{Name: answerUserInterface, Service: "UserInterface1", Action: "GetInfo"},
}

// Catalog returns a copy of the static endpoint catalog.
func Catalog() []EndpointSpec {
	out := make([]EndpointSpec, len(catalog))
	copy(out, catalog)
	return out
}

// ConnectionEndpoint returns the connection status endpoint for the line
// type: PPP over DSL, IP otherwise.
func ConnectionEndpoint(dsl bool) EndpointSpec {
	if dsl {
		return EndpointSpec{Name: answerConnectionInfo, Service: "WANPPPConnection1", Action: "GetInfo"}
	}
	return EndpointSpec{Name: answerConnectionInfo, Service: "WANIPConn1", Action: "GetStatusInfo"}
}
