package core

import "errors"

// Failure taxonomy. Components wrap these sentinels so callers can classify
// with errors.Is, but the engine facade never lets any of them escape a
// conversational turn: every failure degrades to an empty or partial result.
var (
	// ErrOracleUnavailable marks a network or credential failure reaching an
	// external oracle.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrOracleMalformed marks an oracle response that violates the expected
	// schema.
	ErrOracleMalformed = errors.New("oracle returned malformed response")

	// ErrValidation marks an out-of-range or structurally invalid field.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown owner or memory reference.
	ErrNotFound = errors.New("not found")
)
