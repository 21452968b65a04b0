// Package cache provides the pluggable rule-set cache used by the beacon
// client.
//
// Every backend implements [Store] with the same failure policy: storage
// errors are logged and reported as a miss, never returned. A corrupt or
// unavailable cache therefore degrades to "always fetch", it cannot break
// flag evaluation.
package cache

import (
	"context"
	"time"
)

// Store is a key/value store with optional per-entry expiry. Expiry is
// lazy: an expired entry is evicted when it is next read, there is no
// background sweep. A ttl of zero (or below) means the entry never
// expires.
type Store interface {
	// Get returns the value stored under key, or ok=false when the key is
	// absent, expired, or unreadable.
	Get(ctx context.Context, key string) (value string, ok bool)

	// Set stores value under key. ttl <= 0 stores without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration)

	// Has reports whether a live entry exists for key.
	Has(ctx context.Context, key string) bool

	// Delete removes the entry for key, if any.
	Delete(ctx context.Context, key string)

	// Clear removes every entry managed by this store.
	Clear(ctx context.Context)
}

// Null is a Store that discards writes and reports every read as absent,
// forcing each lookup to bypass caching.
type Null struct{}

// Get implements Store.
func (Null) Get(context.Context, string) (string, bool) { return "", false }

// Set implements Store.
func (Null) Set(context.Context, string, string, time.Duration) {}

// Has implements Store.
func (Null) Has(context.Context, string) bool { return false }

// Delete implements Store.
func (Null) Delete(context.Context, string) {}

// Clear implements Store.
func (Null) Clear(context.Context) {}
