package gateway

import (
	"bytes"
	"encoding/xml"
	"io"
	"net/url"
	"strings"

	"github.com/huin/goupnp"
	"golang.org/x/net/html/charset"
)

// A FRITZ!Box publishes two root descriptions. Most services live in the
// TR-064 one; WANCommonIFC1 and WANIPConn1 are only in the IGD one.
const (
	tr64DescriptionPath = "/tr64desc.xml"
	igdDescriptionPath  = "/igddesc.xml"
)

// tr64Extras holds the AVM additions to tr64desc.xml.
type tr64Extras struct {
	SystemVersion systemVersion `xml:"systemVersion"`
}

type systemVersion struct {
	HW          string `xml:"HW"`
	Major       string `xml:"Major"`
	Minor       string `xml:"Minor"`
	Patch       string `xml:"Patch"`
	Buildnumber string `xml:"Buildnumber"`
	Display     string `xml:"Display"`
}

// service is a resolved service, addressed by its short name.
type service struct {
	Name        string
	ServiceType string
	ControlURL  url.URL
	SCPDURL     url.URL
}

type description struct {
	ModelName     string
	SystemVersion string
	Services      map[string]service
}

func newXMLDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	return d
}

// parseRoot decodes a root description and resolves its URLs against the
// document's URLBase, or loc when it has none.
func parseRoot(body []byte, loc *url.URL) (*goupnp.RootDevice, error) {
	root := new(goupnp.RootDevice)
	if err := newXMLDecoder(bytes.NewReader(body)).Decode(root); err != nil {
		return nil, err
	}

	base := loc
	if s := strings.TrimSpace(root.URLBaseStr); s != "" {
		if u, err := url.Parse(s); err == nil {
			base = u
		}
	}

	root.Device.VisitServices(func(s *goupnp.Service) {
		s.ControlURL.Str = strings.TrimSpace(s.ControlURL.Str)
		s.SCPDURL.Str = strings.TrimSpace(s.SCPDURL.Str)
	})
	root.SetURLBase(base)

	return root, nil
}

// addServices adds the services of root to into. Services already present
// are kept.
func addServices(root *goupnp.RootDevice, into map[string]service) {
	root.Device.VisitServices(func(s *goupnp.Service) {
		name := serviceName(s.ServiceId)
		if name == "" || !s.ControlURL.Ok || !s.SCPDURL.Ok {
			return
		}
		if _, ok := into[name]; ok {
			return
		}
		into[name] = service{
			Name:        name,
			ServiceType: strings.TrimSpace(s.ServiceType),
			ControlURL:  s.ControlURL.URL,
			SCPDURL:     s.SCPDURL.URL,
		}
	})
}

func parseSystemVersion(body []byte) string {
	var extras tr64Extras
	if err := newXMLDecoder(bytes.NewReader(body)).Decode(&extras); err != nil {
		return ""
	}
	return extras.SystemVersion.version()
}

// serviceName turns "urn:DeviceInfo-com:serviceId:DeviceInfo1" into "DeviceInfo1".
func serviceName(serviceID string) string {
	serviceID = strings.TrimSpace(serviceID)
	if i := strings.LastIndex(serviceID, ":"); i >= 0 {
		return serviceID[i+1:]
	}
	return serviceID
}

func (v systemVersion) version() string {
	if display := strings.TrimSpace(v.Display); display != "" {
		return display
	}
	if v.Major == "" && v.Minor == "" {
		return ""
	}

	parts := []string{v.HW, v.Major, v.Minor}
	if v.Patch != "" {
		parts = append(parts, v.Patch)
	}
	return strings.Join(parts, ".")
}
