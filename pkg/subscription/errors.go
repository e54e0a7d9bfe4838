package subscription

import "errors"

var (
	ErrProductNotFound             = errors.New("subscription: product not found")
	ErrInvalidProductConfiguration = errors.New("subscription: invalid product configuration")
	ErrFailedToLoadProducts        = errors.New("subscription: failed to load products")
	ErrTermNotOffered              = errors.New("subscription: term not offered for product")

	ErrSubscriptionNotFound      = errors.New("subscription: not found")
	ErrSubscriptionAlreadyExists = errors.New("subscription: active subscription already exists")
	ErrInvalidSubscription       = errors.New("subscription: invalid subscription")
	ErrPeriodConflict            = errors.New("subscription: period changed concurrently")
	ErrStoreFailure              = errors.New("subscription: store failure")
)
