package collector

import (
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/gateway"
)

// Group is a measurement group, the unit of partial failure and the
// measurement name written to a sink.
type Group string

const (
	GroupDevice     Group = "device"
	GroupConnection Group = "connection"
	GroupTraffic    Group = "traffic"
	GroupNetwork    Group = "network"
)

// Groups lists the measurement groups in output order.
var Groups = []Group{GroupDevice, GroupConnection, GroupTraffic, GroupNetwork}

// Fields holds the renamed fields of one group. Values are copied verbatim
// from the router's answers.
type Fields map[string]any

// Record is one measurement point.
type Record struct {
	Measurement string
	Time        time.Time
	Fields      Fields
}

// EndpointSpec names one gateway call and the key its answer is stored under.
type EndpointSpec struct {
	Name    string
	Service string
	Action  string
	Args    map[string]any
}

// HostCensus aggregates the router's host table.
type HostCensus struct {
	Known      int
	Active     int
	KnownLAN   int
	ActiveLAN  int
	KnownWLAN  int
	ActiveWLAN int

	// Complete is false when enumeration stopped on an error or on the
	// hard bound instead of the end of the list.
	Complete bool
}

// Dataset is the raw result of one acquisition.
type Dataset struct {
	Time        time.Time
	Answers     map[string]gateway.Answer
	Census      HostCensus
	Firmware    string
	FirmwareErr error
}
