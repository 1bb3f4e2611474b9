// Package source persists cache values in a byte store so they survive
// restarts and can be shared between processes.
//
// A Store can act as a loader (Load), seed a cache on startup (Seed) and
// follow a cache to keep the store current (Mirror).
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/unkn0wn-root/livecache"
	"github.com/unkn0wn-root/livecache/codec"
	"github.com/unkn0wn-root/livecache/internal/util"
	"github.com/unkn0wn-root/livecache/internal/wire"
	"github.com/unkn0wn-root/livecache/keys"
	"github.com/unkn0wn-root/livecache/provider"
)

var (
	// ErrNotFound is returned when the store has no value for the key.
	ErrNotFound = errors.New("source: not found")
	// ErrCorrupt is returned when the stored bytes could not be read back.
	// The bad value has already been deleted.
	ErrCorrupt = wire.ErrCorrupt
)

type Options[V any] struct {
	// Required
	Namespace string
	Provider  provider.Provider
	Codec     codec.Codec[V]

	TTL    time.Duration   // 0 => no expiry
	Keys   keys.Normalizer // nil => keys.CBOR; must match the cache's normalizer
	Logger livecache.Logger
	Clock  clockwork.Clock
}

// Store reads and writes framed values under one namespace.
type Store[V any] struct {
	ns    string
	p     provider.Provider
	codec codec.Codec[V]
	name  string
	ttl   time.Duration
	keys  keys.Normalizer
	log   livecache.Logger
	clock clockwork.Clock
}

func New[V any](opts Options[V]) (*Store[V], error) {
	if opts.Namespace == "" {
		return nil, errors.New("source: namespace is required")
	}
	if opts.Provider == nil || opts.Codec == nil {
		return nil, errors.New("source: provider and codec are required")
	}
	s := &Store[V]{
		ns:    opts.Namespace,
		p:     opts.Provider,
		codec: opts.Codec,
		name:  codec.NameOf(opts.Codec),
		ttl:   opts.TTL,
		keys:  opts.Keys,
		log:   opts.Logger,
		clock: opts.Clock,
	}
	if s.keys == nil {
		n, err := keys.NewCBOR()
		if err != nil {
			return nil, err
		}
		s.keys = n
	}
	if s.log == nil {
		s.log = livecache.NopLogger{}
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s, nil
}

// Put stores v for args, stamped with at. A zero at means now.
func (s *Store[V]) Put(ctx context.Context, v V, at time.Time, args ...any) error {
	key, err := s.storageKey(args)
	if err != nil {
		return err
	}
	payload, err := s.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("source: encode: %w", err)
	}
	if at.IsZero() {
		at = s.clock.Now()
	}
	frame, err := wire.Encode(wire.Frame{Codec: s.name, Stamp: at, Payload: payload})
	if err != nil {
		return err
	}
	return s.p.Set(ctx, key, frame, s.ttl)
}

// Lookup returns the stored value for args and the time it was observed.
func (s *Store[V]) Lookup(ctx context.Context, args ...any) (V, time.Time, error) {
	var zero V
	key, err := s.storageKey(args)
	if err != nil {
		return zero, time.Time{}, err
	}
	b, ok, err := s.p.Get(ctx, key)
	if err != nil {
		return zero, time.Time{}, err
	}
	if !ok {
		return zero, time.Time{}, ErrNotFound
	}

	f, err := wire.Decode(b)
	if err == nil && f.Codec != s.name {
		err = fmt.Errorf("%w: written with codec %q", ErrCorrupt, f.Codec)
	}
	var v V
	if err == nil {
		v, err = s.codec.Decode(f.Payload)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	if err != nil {
		// self-heal: the value can never be read, so drop it
		if derr := s.p.Del(ctx, key); derr != nil {
			s.log.Warn("corrupt value not deleted", livecache.Fields{"ns": s.ns, "err": derr})
		}
		s.log.Warn("corrupt value dropped", livecache.Fields{"ns": s.ns, "err": err})
		return zero, time.Time{}, err
	}
	return v, f.Stamp, nil
}

// Load is a livecache.LoaderFunc serving values from the store.
func (s *Store[V]) Load(ctx context.Context, args ...any) (V, error) {
	v, _, err := s.Lookup(ctx, args...)
	return v, err
}

func (s *Store[V]) Delete(ctx context.Context, args ...any) error {
	key, err := s.storageKey(args)
	if err != nil {
		return err
	}
	return s.p.Del(ctx, key)
}

// Seed copies the stored value for args into c with its original stamp, so a
// fresher value already in c is kept. It reports whether a value was found.
func (s *Store[V]) Seed(ctx context.Context, c livecache.Cache[V], args ...any) (bool, error) {
	v, at, err := s.Lookup(ctx, args...)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := c.SetExplicitValue(args, v, at); err != nil {
		return false, err
	}
	return true, nil
}

// Mirror writes every value c loads for args into the store until ctx ends.
// Store errors are logged and do not stop mirroring.
func (s *Store[V]) Mirror(ctx context.Context, c livecache.Cache[V], args ...any) error {
	err := c.Observe(ctx, func(e livecache.Entry[V]) error {
		if e.Status != livecache.StatusLoaded {
			return nil
		}
		if err := s.Put(ctx, e.Value, e.UpdatedAt, args...); err != nil {
			s.log.Warn("mirror write failed", livecache.Fields{"ns": s.ns, "err": err})
		}
		return nil
	}, args...)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *Store[V]) storageKey(args []any) (string, error) {
	k, err := s.keys.Normalize(args)
	if err != nil {
		return "", &livecache.KeyNormalizationError{Args: args, Err: err}
	}
	return util.StorageKey(s.ns, k), nil
}
