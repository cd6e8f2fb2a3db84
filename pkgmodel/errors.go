package pkgmodel

import "errors"

var (
	// ErrUnknownCategory is returned for categories outside NQM/RTL/SBC/CONV.
	ErrUnknownCategory = errors.New("pkgmodel: unknown category")

	// ErrInvalidPackage is returned when a package definition fails
	// structural validation.
	ErrInvalidPackage = errors.New("pkgmodel: invalid package definition")

	// ErrSlotNotFound is returned when a slot ID does not exist.
	ErrSlotNotFound = errors.New("pkgmodel: expected-document slot not found")

	// ErrSlotTypeMismatch is returned when a document's detected type
	// disagrees with the slot's declared type.
	ErrSlotTypeMismatch = errors.New("pkgmodel: slot type mismatch")

	// ErrVersionNotFound is returned when rolling back to an unknown version.
	ErrVersionNotFound = errors.New("pkgmodel: package version not found")
)
