// Package middleware provides gin middleware for the HTTP API: request
// ID injection, structured request logging, and request metrics.
package middleware
