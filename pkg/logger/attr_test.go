package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/seatshare/pkg/logger"
)

func TestError(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestIDAttrs(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	tests := []struct {
		attr slog.Attr
		key  string
	}{
		{logger.UserID(id), "user_id"},
		{logger.OrderID(id), "order_id"},
		{logger.CouponID(id), "coupon_id"},
		{logger.SubscriptionID(id), "subscription_id"},
		{logger.TransactionID(id), "transaction_id"},
		{logger.IntentID(id), "intent_id"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, id, tt.attr.Value.Any())
		})
	}

	assert.True(t, logger.OrderID(nil).Equal(slog.Attr{}))
}

func TestValueAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(10800), logger.AmountCents(10800).Value.Int64())
	assert.Equal(t, "credits_debited", logger.SagaState("credits_debited").Value.String())
	assert.Equal(t, "insufficient_credits", logger.Reason("insufficient_credits").Value.String())
	assert.Equal(t, time.Second, logger.Duration(time.Second).Value.Duration())
	assert.Equal(t, "product_id", logger.ProductID("netflix").Key)
}
