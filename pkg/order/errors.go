package order

import "errors"

var (
	ErrOrderNotFound  = errors.New("order: not found")
	ErrTerminalStatus = errors.New("order: status is terminal")
	ErrInvalidOrder   = errors.New("order: invalid order")
	ErrInvalidStatus  = errors.New("order: invalid status")
	ErrStoreFailure   = errors.New("order: store failure")
)
