package cache

import "errors"

// Sentinel errors surfaced by the Store and Agent facade. Miss is
// deliberately not one of these: a miss is a normal negative result, not an
// error, per spec.md section 7.
var (
	// ErrOversizedFrame is returned when a single frame exceeds byte_limit.
	ErrOversizedFrame = errors.New("frame exceeds byte limit")

	// ErrInvalidPayload is returned when put is called with an empty payload.
	ErrInvalidPayload = errors.New("frame payload is empty")

	// ErrShutdownInProgress is returned by public operations called after
	// shutdown has begun; callers should treat it like a miss/no-op.
	ErrShutdownInProgress = errors.New("frame cache is shutting down")
)
