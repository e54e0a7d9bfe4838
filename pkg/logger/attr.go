package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

func OrderID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("order_id", id)
}

func CouponID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("coupon_id", id)
}

func SubscriptionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscription_id", id)
}

func TransactionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("transaction_id", id)
}

// IntentID records an outbox intent identifier.
func IntentID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("intent_id", id)
}

func ProductID(id string) slog.Attr {
	return slog.String("product_id", id)
}

// AmountCents records a minor-unit amount under "amount_cents".
func AmountCents(v int64) slog.Attr {
	return slog.Int64("amount_cents", v)
}

// SagaState records the purchase saga state.
func SagaState(state string) slog.Attr {
	return slog.String("saga_state", state)
}

// Reason records a machine-readable failure reason or code.
func Reason(reason string) slog.Attr {
	return slog.String("reason", reason)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}
