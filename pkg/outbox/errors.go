package outbox

import "errors"

var (
	ErrStoreNil                 = errors.New("outbox: store cannot be nil")
	ErrIntentNotFound           = errors.New("outbox: intent not found")
	ErrEmptyKind                = errors.New("outbox: kind is required")
	ErrPayloadMarshal           = errors.New("outbox: failed to marshal payload to JSON")
	ErrPayloadUnmarshal         = errors.New("outbox: failed to unmarshal payload")
	ErrHandlerNotFound          = errors.New("outbox: no handler registered for intent kind")
	ErrHandlerAlreadyRegistered = errors.New("outbox: handler already registered for kind")
	ErrLeaseLost                = errors.New("outbox: intent lease lost")
	ErrStoreFailure             = errors.New("outbox: store failure")

	// ErrPermanent marks a handler failure that no retry can fix.
	ErrPermanent = errors.New("outbox: permanent failure")
)
