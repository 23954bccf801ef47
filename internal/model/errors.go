package model

import "github.com/rotisserie/eris"

// Run-level error taxonomy. Callers match with errors.Is.
var (
	// ErrInputValidation covers bad file types, a missing or empty sheet, and
	// input without any usable record. The run never starts.
	ErrInputValidation = eris.New("input validation failed")

	// ErrNoValidRecords means every record lacked a name.
	ErrNoValidRecords = eris.Wrap(ErrInputValidation, "no valid records")

	// ErrLookupFailure means the personnel directory could not be queried.
	ErrLookupFailure = eris.New("directory lookup failed")
)
