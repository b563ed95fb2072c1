// Package retry runs an operation with bounded attempts and backoff.
//
// It never retries indefinitely: every loop has a maximum attempt count, and
// callers classify errors so only transient failures are retried.
package retry
