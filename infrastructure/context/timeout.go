// Package context provides shared timeout helpers for linksync.
package context

import (
	"context"
	"time"
)

const (
	// DefaultPingTimeout bounds health check pings against backing stores.
	DefaultPingTimeout = 2 * time.Second

	// DefaultReleaseTimeout bounds cleanup that must outlive the caller's context.
	DefaultReleaseTimeout = 5 * time.Second
)

// WithPingTimeout returns a background context bounded by DefaultPingTimeout.
func WithPingTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), DefaultPingTimeout)
}

// Detached returns a context that keeps parent's values but ignores its
// cancellation, bounded by DefaultReleaseTimeout.
func Detached(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), DefaultReleaseTimeout)
}
