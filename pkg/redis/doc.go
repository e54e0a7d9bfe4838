// Package redis connects to Redis with go-redis/v9. The billing process uses
// it for the analytics event stream; Connect retries on startup and
// Healthcheck feeds readiness checks.
package redis
