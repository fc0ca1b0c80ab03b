package collector

import "github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"

const (
	// Selection Errors
	ErrSelectionFailed = errors.ErrorCode("collector_selection_failed")

	// Acquisition Errors
	ErrCensusIncomplete = errors.ErrorCode("collector_census_incomplete")
	ErrHostLimitReached = errors.ErrorCode("collector_host_limit_reached")
)

// missingField describes why a group could not be built.
type missingField struct {
	Group  Group
	Answer string
	Field  string
}
