package usecase

import "errors"

var (
	// ErrInvalidConfig wraps runtime configuration validation failures.
	ErrInvalidConfig = errors.New("invalid runtime config")
	// ErrUnknownSymbol is returned when no data exists for a symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// ErrInvalidQuery is returned for unparsable query filters.
var ErrInvalidQuery = errors.New("invalid query")
