// Package logger builds *slog.Logger instances for the billing services.
//
// New applies functional options on top of JSON/info defaults and wraps the
// handler in LogHandlerDecorator, which runs ContextExtractor callbacks on
// every record. TraceExtractor attaches the OpenTelemetry trace id so a saga's
// log lines line up with its spans.
//
// Attribute helpers (UserID, OrderID, CouponID, TransactionID, AmountCents,
// SagaState, ...) keep key names identical across packages:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "billingd"),
//		logger.WithContextExtractors(logger.TraceExtractor()),
//	)
//	log.ErrorContext(ctx, "compensation failed",
//		logger.OrderID(orderID),
//		logger.SagaState("credits_debited"),
//		logger.Error(err),
//	)
package logger
