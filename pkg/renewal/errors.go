package renewal

import "errors"

var (
	ErrOutsideRenewalWindow = errors.New("renewal: subscription is outside its renewal window")
	ErrNotOwner             = errors.New("renewal: subscription belongs to another user")
	ErrNotActive            = errors.New("renewal: subscription is not active")
	ErrPaymentFailed        = errors.New("renewal: payment failed")
	ErrExtendFailed         = errors.New("renewal: period could not be extended")
	ErrMissingDependency    = errors.New("renewal: missing dependency")
)
