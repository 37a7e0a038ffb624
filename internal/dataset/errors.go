package dataset

import "errors"

var (
	// ErrStrictValidation is wrapped into the write-phase Error when
	// strictness rejects an invalid record outright (spec §4.10).
	ErrStrictValidation = errors.New("dataset: record failed schema validation")
	ErrClosed           = errors.New("dataset: writer is finalized")
)
