package guidegraph

import (
	"errors"

	"github.com/guidegraph/guidegraph/pkgmodel"
)

// Input-error sentinels are defined by the package model and re-exported
// here so callers can match them without importing pkgmodel.
var (
	ErrUnknownCategory  = pkgmodel.ErrUnknownCategory
	ErrInvalidPackage   = pkgmodel.ErrInvalidPackage
	ErrSlotNotFound     = pkgmodel.ErrSlotNotFound
	ErrSlotTypeMismatch = pkgmodel.ErrSlotTypeMismatch
	ErrVersionNotFound  = pkgmodel.ErrVersionNotFound
)

var (
	// ErrUnsupportedFormat is returned for unrecognized document formats.
	ErrUnsupportedFormat = errors.New("guidegraph: unsupported document format")

	// ErrLLMRequestFailed is returned when an LLM request fails after retries.
	ErrLLMRequestFailed = errors.New("guidegraph: LLM request failed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("guidegraph: invalid configuration")
)
