package gateway

import (
	"encoding/xml"
	"fmt"
	"go/token"
	"reflect"
	"sort"
	"strings"

	"github.com/huin/goupnp/soap"
)

// soapArgs builds the request value for soap.SOAPClient, which encodes one
// element per string field. Fields are in sorted argument order. A nil
// result means the action takes no arguments.
func soapArgs(args map[string]any) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]reflect.StructField, 0, len(names))
	for _, name := range names {
		if !token.IsIdentifier(name) || !token.IsExported(name) {
			return nil, fmt.Errorf("invalid argument name %q", name)
		}
		fields = append(fields, reflect.StructField{
			Name: name,
			Type: reflect.TypeOf(""),
			Tag:  reflect.StructTag(fmt.Sprintf("soap:%q", name)),
		})
	}

	v := reflect.New(reflect.StructOf(fields))
	for i, name := range names {
		v.Elem().Field(i).SetString(formatArg(args[name]))
	}

	return v.Interface(), nil
}

func formatArg(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "1"
		}
		return "0"
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// responseArgs collects the output arguments of an action response by
// element name.
type responseArgs map[string]string

func (r *responseArgs) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	values := make(responseArgs)
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			var text string
			if err := d.DecodeElement(&text, &t); err != nil {
				return err
			}
			values[t.Name.Local] = text
		case xml.EndElement:
			*r = values
			return nil
		}
	}
}

type upnpError struct {
	ErrorCode        int    `xml:"errorCode"`
	ErrorDescription string `xml:"errorDescription"`
}

// faultFromSOAP reads the UPnPError from a SOAP fault's detail. A fault
// without one keeps code 0 and the fault string.
func faultFromSOAP(f *soap.SOAPFaultError) *FaultError {
	fault := &FaultError{Description: strings.TrimSpace(f.FaultString)}

	var detail upnpError
	if err := xml.Unmarshal(f.Detail.Raw, &detail); err != nil {
		return fault
	}

	fault.Code = detail.ErrorCode
	if desc := strings.TrimSpace(detail.ErrorDescription); desc != "" {
		fault.Description = desc
	}
	return fault
}
