package leads

import "errors"

// Sentinel errors surfaced by stores and the runner client. Handlers map
// these to HTTP statuses; everything else is treated as internal.
var (
	// ErrNotFound reports an unknown job identifier on a caller-facing read.
	ErrNotFound = errors.New("job not found")
	// ErrUnknownJob reports a webhook referencing a job with no property
	// store. Late or out-of-order webhooks are dropped with a warning.
	ErrUnknownJob = errors.New("unknown job")
	// ErrUnknownLead reports a lead identifier that resolves to no property.
	ErrUnknownLead = errors.New("unknown lead")
	// ErrInvalidTransition reports a status change outside the forward-only
	// machine. Callers log and ignore it; the prior status is kept.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrJobExists reports a duplicate job identifier on create.
	ErrJobExists = errors.New("job already exists")
)
