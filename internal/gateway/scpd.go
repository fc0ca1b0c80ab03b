package gateway

import (
	"io"
	"strconv"
	"strings"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/huin/goupnp/scpd"
)

// actionTypes maps an action's output argument names to their data types.
type actionTypes map[string]string

// serviceTypes holds the output argument types of every action of a service.
type serviceTypes map[string]actionTypes

func parseSCPD(r io.Reader) (serviceTypes, error) {
	var doc scpd.SCPD
	if err := newXMLDecoder(r).Decode(&doc); err != nil {
		return nil, errors.New().Wrap(ErrSCPDFailed, err)
	}

	variables := make(map[string]string, len(doc.StateVariables))
	for _, sv := range doc.StateVariables {
		variables[strings.TrimSpace(sv.Name)] = strings.TrimSpace(sv.DataType.Name)
	}

	types := make(serviceTypes, len(doc.Actions))
	for _, action := range doc.Actions {
		out := make(actionTypes)
		for _, arg := range action.Arguments {
			if !strings.EqualFold(strings.TrimSpace(arg.Direction), "out") {
				continue
			}
			out[strings.TrimSpace(arg.Name)] = variables[strings.TrimSpace(arg.RelatedStateVariable)]
		}
		types[strings.TrimSpace(action.Name)] = out
	}

	return types, nil
}

// convert turns a raw argument value into the Go scalar for its UPnP data
// type. Values that do not parse are kept as strings.
func convert(dataType, raw string) any {
	switch dataType {
	case "ui1", "ui2", "ui4", "ui8", "i1", "i2", "i4", "i8", "int":
		trimmed := strings.TrimSpace(raw)
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			return n
		}
		return raw
	case "boolean":
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "1", "true", "yes":
			return true
		case "0", "false", "no":
			return false
		}
		return raw
	default:
		return raw
	}
}
