// Package analytics emits best-effort business events such as completed
// purchases and renewals.
//
// Emitters never fail the operation that produced the event: callers log
// the returned error and move on. RedisStreamEmitter appends to a capped
// Redis stream for downstream consumers, LogEmitter writes structured log
// lines, and Multi fans an event out to several emitters.
package analytics
