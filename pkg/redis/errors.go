package redis

import "errors"

// Errors returned while bootstrapping the analytics stream client.
var (
	ErrFailedToParseRedisConnString = errors.New("redis: REDIS_URL is not a valid redis:// or rediss:// URL")
	ErrRedisNotReady                = errors.New("redis: server did not answer PING before the connect timeout")
	ErrEmptyConnectionURL           = errors.New("redis: REDIS_URL is empty")
	ErrHealthcheckFailed            = errors.New("redis: analytics stream backend is unreachable")
)
