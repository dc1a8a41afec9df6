package model

import "errors"

// ErrConfiguration marks every configuration problem. Specific validation
// failures wrap it so callers can test with errors.Is and still print a
// precise message.
var ErrConfiguration = errors.New("configuration error")

// Configuration validation errors returned by Config.Validate and the planner.
var (
	ErrNoKeywords       = configError("keyword list is empty")
	ErrNoRegions        = configError("region list is empty")
	ErrBlankKeyword     = configError("keyword must not be blank")
	ErrBlankRegion      = configError("region name must not be blank")
	ErrInvalidRange     = configError("delay range must be [min, max] with 0 <= min <= max")
	ErrInvalidResults   = configError("results_per_search must be between 1 and 100")
	ErrInvalidFlush     = configError("flush_every and flush_interval must be non-negative")
	ErrNoFormats        = configError("at least one output format is required")
	ErrUnknownFormat    = configError("unknown output format (supported: csv, json, sqlite)")
	ErrInvalidTimeout   = configError("timeouts must be positive")
	ErrNoUserAgents     = configError("user agent pool is empty")
	ErrUnknownBackend   = configError("unknown dedup backend (supported: memory, redis)")
	ErrMissingSearchKey = configError("search.api_key and search.engine_id are required")
	ErrInvalidPattern   = configError("extraction.phone_pattern does not compile")
	ErrUnknownProvider  = configError("unknown provider")
)

type wrappedConfigError struct {
	msg string
}

func configError(msg string) error {
	return &wrappedConfigError{msg: msg}
}

func (e *wrappedConfigError) Error() string {
	return "configuration error: " + e.msg
}

func (e *wrappedConfigError) Unwrap() error {
	return ErrConfiguration
}
