package gateway

import (
	"fmt"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
)

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("gateway_invalid_config")

	// Discovery Errors
	ErrDescriptionFailed = errors.ErrorCode("gateway_description_failed")
	ErrSCPDFailed        = errors.ErrorCode("gateway_scpd_failed")
	ErrUnknownService    = errors.ErrorCode("gateway_unknown_service")
	ErrUnknownAction     = errors.ErrorCode("gateway_unknown_action")

	// Call Errors
	ErrEndpointFailed = errors.ErrorCode("gateway_endpoint_failed")
	ErrFault          = errors.ErrorCode("gateway_fault")
)

// UPnP error codes of interest.
const (
	faultArrayIndexInvalid  = 713
	faultNoSuchEntryInArray = 714
)

// FaultError is a SOAP fault carrying a UPnP error.
type FaultError struct {
	Code        int
	Description string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("UPnP error %d: %s", e.Code, e.Description)
}

// IsIndexFault reports whether the fault marks an out-of-range array index.
func (e *FaultError) IsIndexFault() bool {
	return e.Code == faultArrayIndexInvalid || e.Code == faultNoSuchEntryInArray
}

type statusError struct {
	status int
	text   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d %s", e.status, e.text)
}
