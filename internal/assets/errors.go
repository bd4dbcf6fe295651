package assets

import "errors"

// Common errors returned by asset catalog operations.
var (
	// ErrSchemaNotFound is returned when no schema matches the configured
	// name. Schema names are environment configuration; a miss usually
	// means a typo or the wrong workspace.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrObjectTypeNotFound is returned when the schema has no object type
	// with the requested name.
	ErrObjectTypeNotFound = errors.New("object type not found")

	// ErrAttributeNotFound is returned when the object type has no
	// attribute with the requested name.
	ErrAttributeNotFound = errors.New("attribute not found")

	// ErrAssetNotFound is returned when no object matches the requested
	// key or serial number.
	ErrAssetNotFound = errors.New("asset not found")
)
