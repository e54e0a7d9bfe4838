package outbox

import (
	"context"
	"encoding/json"
	"errors"
)

type (
	// Handler executes intents of one kind.
	Handler interface {
		Kind() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	HandlerFunc[T any] func(ctx context.Context, payload T) error
)

// NewHandler decodes the JSON payload into T before calling fn.
// A payload that does not decode is a permanent failure.
func NewHandler[T any](kind string, fn HandlerFunc[T]) Handler {
	return &typedHandler[T]{kind: kind, fn: fn}
}

type typedHandler[T any] struct {
	kind string
	fn   HandlerFunc[T]
}

func (h *typedHandler[T]) Kind() string {
	return h.kind
}

func (h *typedHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return errors.Join(ErrPermanent, ErrPayloadUnmarshal, err)
	}
	return h.fn(ctx, v)
}
