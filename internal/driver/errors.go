package driver

import "errors"

// Operational errors. These indicate caller misuse and are surfaced
// immediately rather than folded into validation results.
var (
	ErrNotFound           = errors.New("driver not found")
	ErrDuplicateName      = errors.New("driver name already exists")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)
