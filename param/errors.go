package param

import "errors"

var (
	// ErrInvalidCatalog is returned when a catalog fails validation.
	ErrInvalidCatalog = errors.New("invalid parameter catalog")

	// ErrInvalidValue is returned when pending text cannot be encoded for
	// the parameter's type.
	ErrInvalidValue = errors.New("invalid parameter value")

	// ErrOutOfRange is returned when an Integer value falls outside the
	// definition's declared range.
	ErrOutOfRange = errors.New("parameter value out of range")

	// ErrReadOnly is returned when a value is requested for a None-typed
	// parameter.
	ErrReadOnly = errors.New("parameter is read-only")
)
