package stats

import "errors"

var (
	// ErrMalformedSubmission is returned when a report lacks its client id,
	// environment block or active port list. Nothing is persisted.
	ErrMalformedSubmission = errors.New("malformed submission")

	// ErrPortNotFound is returned when statistics are requested for a port
	// that is not in the catalog.
	ErrPortNotFound = errors.New("port not found")

	// ErrInvalidQuery is returned for facets or sort columns outside the allow-lists.
	ErrInvalidQuery = errors.New("invalid statistics query")
)
