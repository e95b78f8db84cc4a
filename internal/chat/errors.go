package chat

import "errors"

// Failure taxonomy returned synchronously to callers. Delivery failures are
// not part of it; they stay behind the dispatcher boundary.
var (
	// ErrNotFound signals a missing chat, message, user or listing.
	ErrNotFound = errors.New("not found")
	// ErrForbidden signals an authorization failure; checks fail closed.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidReference signals a reply target outside the message's chat.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrNoChange signals an edit with no actual delta.
	ErrNoChange = errors.New("no change")
	// ErrInvalidInput signals a malformed request.
	ErrInvalidInput = errors.New("invalid input")
)
