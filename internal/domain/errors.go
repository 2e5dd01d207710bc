package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common chat failures. Adapters wrap them with context using %w.
var (
	// ErrValidation is returned when a draft message is rejected before any write,
	// e.g. a body that is empty after trimming whitespace.
	ErrValidation = errors.New("validation failed")

	// ErrStoreUnavailable is returned when the message store backend cannot serve a request.
	ErrStoreUnavailable = errors.New("message store unavailable")

	// ErrPublishFailed is surfaced by the sync engine when a publish could not be made durable.
	ErrPublishFailed = errors.New("publish failed")

	// ErrForbidden is returned when a participant tries to delete a message they did not author.
	ErrForbidden = errors.New("not the author of this message")

	// ErrNotFound is returned when the requested resource does not exist (or was already deleted).
	ErrNotFound = errors.New("requested resource not found")

	// ErrSubscriptionFailed is returned when a channel subscription was not acknowledged.
	ErrSubscriptionFailed = errors.New("subscription not acknowledged")

	// ErrRoomUnavailable is surfaced once subscription retries are exhausted.
	ErrRoomUnavailable = errors.New("room unavailable")

	// ErrNoSession is returned when a request carries no authenticated session.
	ErrNoSession = errors.New("no authenticated session")

	// ErrNotLive is returned when an action needs a consistent view but the room is still loading.
	ErrNotLive = errors.New("room is not live")
)
