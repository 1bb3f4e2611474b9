// Package provider defines the byte stores that back persisted snapshots.
//
// Implementations must be byte-for-byte transparent: Get returns exactly the
// bytes passed to Set for the key, with no added metadata and no re-encoding.
// Keys under a namespace handed to a source.Store belong to that store;
// foreign writes there fail frame validation and are deleted.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrRejected is returned by Set when the store refused the write, for
// example an admission policy dropping it under pressure.
var ErrRejected = errors.New("provider: write rejected")

// Provider is a minimal byte store. Safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. ttl <= 0 means no expiry; stores without per-key
	// expiry may ignore ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}
