package models

// ErrorKind is the failure taxonomy surfaced on instance records. Every
// failed instance carries exactly one kind plus a display reason; errors
// never escalate to process-wide faults.
type ErrorKind string

const (
	// ErrKindConfiguration covers caller errors: unknown variety or
	// profile, missing footprint. Never retried automatically.
	ErrKindConfiguration ErrorKind = "configuration"

	// ErrKindResourceExhausted means admission was rejected; the caller
	// must resubmit with different placement or resources.
	ErrKindResourceExhausted ErrorKind = "resource-exhausted"

	// ErrKindSecrets covers token mismatches and missing lockers; the
	// caller must resupply a token.
	ErrKindSecrets ErrorKind = "secrets"

	// ErrKindRuntime covers runtime shim start/stop failures, surfaced
	// verbatim. Retry is an explicit operator action.
	ErrKindRuntime ErrorKind = "runtime"

	// ErrKindTimeout marks a blocking step that exceeded its deadline.
	// Treated as a runtime-class failure, never retried implicitly.
	ErrKindTimeout ErrorKind = "timeout"
)
