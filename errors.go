package komida

import "errors"

var (
	// ErrUnknownCampus is returned for a campus code missing from the config.
	ErrUnknownCampus = errors.New("komida: unknown campus")

	// ErrFetchFailed is returned when the menu page or document cannot be
	// retrieved.
	ErrFetchFailed = errors.New("komida: fetching menu failed")

	// ErrParsingFailed is returned when a document cannot be read or its
	// week cannot be resolved.
	ErrParsingFailed = errors.New("komida: parsing failed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("komida: invalid configuration")

	// ErrUnsupportedFormat is returned for a local file no loader reads.
	ErrUnsupportedFormat = errors.New("komida: unsupported document format")
)
