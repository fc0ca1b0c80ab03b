package gateway

import (
	"context"
	stderrors "errors"
)

// Gateway is the capability the collector polls: named actions on named
// services, the router's host table, and its firmware version.
type Gateway interface {
	// Call invokes action on service and returns the answer's output arguments.
	Call(ctx context.Context, service, action string, args map[string]any) (Answer, error)

	// HostEntry returns the host at index. Past the last host it returns
	// ErrEndOfList.
	HostEntry(ctx context.Context, index int) (HostEntry, error)

	// FirmwareVersion returns the system version reported by the device
	// description.
	FirmwareVersion(ctx context.Context) (string, error)
}

// Answer maps output argument names to scalar values (string, int64 or bool).
type Answer map[string]any

// HostEntry is one row of the router's host table.
type HostEntry struct {
	Index         int
	IPAddress     string
	MACAddress    string
	HostName      string
	InterfaceType string
	Active        bool
}

// Interface types reported by Hosts1.GetGenericHostEntry.
const (
	InterfaceEthernet = "Ethernet"
	InterfaceWLAN     = "802.11"
)

// ErrEndOfList signals that HostEntry was asked for an index past the end
// of the host table.
var ErrEndOfList = stderrors.New("end of host list")
