// Package errors defines sentinel errors for document writing and staging.
package errors

import "errors"

var (
	// ErrNoStaging indicates finalize or abort was called without an
	// initialized staging directory.
	ErrNoStaging = errors.New("staging not initialized")

	// ErrMissingDocument indicates a planned page had no resolved document
	// to write.
	ErrMissingDocument = errors.New("no resolved document for page")

	// ErrManifestIncomplete indicates the navigation manifest does not
	// reference every planned page exactly once.
	ErrManifestIncomplete = errors.New("navigation manifest incomplete")
)
