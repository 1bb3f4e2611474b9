// Package iot keeps a live, cached view of network devices: the devices
// themselves, device queries, and each device's ping and wake-up history.
//
// Every read goes through a livecache.Cache, so concurrent readers share one
// backend request and subscribers see every state change. Mutations and
// server notifications invalidate exactly the entries they affect.
package iot

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jonboulle/clockwork"

	"github.com/unkn0wn-root/livecache"
)

const defaultCapacity = 100

type (
	PingHistory  = Collection[DevicePingHistory]
	AwakeHistory = Collection[DeviceAwakeHistory]
)

type ServiceOptions struct {
	Capacity int // per cache; 0 => 100
	Logger   livecache.Logger
	Hooks    livecache.Hooks
	Clock    clockwork.Clock
}

type Service struct {
	api   API
	log   livecache.Logger
	clock clockwork.Clock

	devices livecache.Cache[Device]
	queries livecache.Cache[Collection[Device]]
	pings   livecache.Cache[PingHistory]
	awakes  livecache.Cache[AwakeHistory]
}

func NewService(api API, opts ServiceOptions) (*Service, error) {
	if api == nil {
		return nil, errors.New("iot: api is required")
	}
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.Logger == nil {
		opts.Logger = livecache.NopLogger{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	s := &Service{api: api, log: opts.Logger, clock: opts.Clock}

	var err error
	if s.devices, err = newCache(opts, "devices", s.loadDevice); err != nil {
		return nil, err
	}
	if s.queries, err = newCache(opts, "device_queries", s.loadQuery); err != nil {
		return nil, err
	}
	if s.pings, err = newCache(opts, "ping_history", s.loadPings); err != nil {
		return nil, err
	}
	if s.awakes, err = newCache(opts, "awake_history", s.loadAwakes); err != nil {
		return nil, err
	}
	return s, nil
}

func newCache[V any](opts ServiceOptions, name string, load livecache.LoaderFunc[V]) (livecache.Cache[V], error) {
	return livecache.New(livecache.Options[V]{
		Name:     name,
		Capacity: opts.Capacity,
		Loader:   load,
		Logger:   opts.Logger,
		Hooks:    opts.Hooks,
		Clock:    opts.Clock,
	})
}

// Close releases every subscription held on the service's caches.
func (s *Service) Close(ctx context.Context) error {
	return errors.Join(
		s.devices.Close(ctx),
		s.queries.Close(ctx),
		s.pings.Close(ctx),
		s.awakes.Close(ctx),
	)
}

// ==============================
// Loaders
// ==============================

func (s *Service) loadDevice(ctx context.Context, args ...any) (Device, error) {
	name, err := arg[string](args, 0)
	if err != nil {
		return Device{}, err
	}
	return s.api.Device(ctx, name)
}

// loadQuery also stores every returned device in the device cache, so a
// listing page warms the detail views.
func (s *Service) loadQuery(ctx context.Context, args ...any) (Collection[Device], error) {
	q, err := arg[FindOptions](args, 0)
	if err != nil {
		return Collection[Device]{}, err
	}
	res, err := s.api.FindDevices(ctx, q)
	if err != nil {
		return res, err
	}
	now := s.clock.Now()
	for _, d := range res.Entries {
		if err := s.devices.SetExplicitValue([]any{d.Name}, d, now); err != nil {
			s.log.Warn("device not cached from query", livecache.Fields{"device": d.Name, "err": err})
		}
	}
	return res, nil
}

func (s *Service) loadPings(ctx context.Context, args ...any) (PingHistory, error) {
	name, q, err := historyArgs(args)
	if err != nil {
		return PingHistory{}, err
	}
	return s.api.FindPingHistory(ctx, byName(name, q))
}

func (s *Service) loadAwakes(ctx context.Context, args ...any) (AwakeHistory, error) {
	name, q, err := historyArgs(args)
	if err != nil {
		return AwakeHistory{}, err
	}
	return s.api.FindAwakeHistory(ctx, byName(name, q))
}

func arg[T any](args []any, i int) (T, error) {
	var zero T
	if i >= len(args) {
		return zero, fmt.Errorf("iot: missing argument %d", i)
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, fmt.Errorf("iot: argument %d is %T, want %T", i, args[i], zero)
	}
	return v, nil
}

func historyArgs(args []any) (string, FindOptions, error) {
	name, err := arg[string](args, 0)
	if err != nil {
		return "", FindOptions{}, err
	}
	if len(args) < 2 {
		return name, FindOptions{}, nil
	}
	q, err := arg[FindOptions](args, 1)
	return name, q, err
}

// ==============================
// Reads
// ==============================

func (s *Service) GetDevice(ctx context.Context, name string) (Device, error) {
	return s.devices.Get(ctx, name)
}

func (s *Service) ObserveDevice(ctx context.Context, name string) (*livecache.Subscription[Device], error) {
	return s.devices.Subscribe(ctx, name)
}

func (s *Service) FindDevices(ctx context.Context, q FindOptions) (Collection[Device], error) {
	return s.queries.Get(ctx, q)
}

func (s *Service) ObserveDevices(ctx context.Context, q FindOptions) (*livecache.Subscription[Collection[Device]], error) {
	return s.queries.Subscribe(ctx, q)
}

func (s *Service) FindPingHistory(ctx context.Context, name string, q FindOptions) (PingHistory, error) {
	return s.pings.Get(ctx, name, q)
}

func (s *Service) FindAwakeHistory(ctx context.Context, name string, q FindOptions) (AwakeHistory, error) {
	return s.awakes.Get(ctx, name, q)
}

func (s *Service) ObserveLastPing(ctx context.Context, name string) (*livecache.Subscription[PingHistory], error) {
	return s.pings.Subscribe(ctx, name, LastEntry())
}

func (s *Service) ReloadLastPing(ctx context.Context, name string) (PingHistory, error) {
	return s.pings.Reload(ctx, name, LastEntry())
}

// PingCache exposes the ping-history cache for persistence helpers such as
// source.Store. Keys are (device name, FindOptions).
func (s *Service) PingCache() livecache.Cache[PingHistory] { return s.pings }

func (s *Service) ObserveLastAwake(ctx context.Context, name string) (*livecache.Subscription[AwakeHistory], error) {
	return s.awakes.Subscribe(ctx, name, LastEntry())
}

func (s *Service) ReloadLastAwake(ctx context.Context, name string) (AwakeHistory, error) {
	return s.awakes.Reload(ctx, name, LastEntry())
}

// ==============================
// Mutations
// ==============================

// DeleteDevice deletes the device, drops its cached copy and flushes every
// query and history cache: any of them may list it.
func (s *Service) DeleteDevice(ctx context.Context, name string) error {
	if err := s.api.DeleteDevice(ctx, name); err != nil {
		return err
	}
	if err := s.devices.Remove(name); err != nil {
		return err
	}
	s.flushListings()
	return nil
}

// UpdateDevice patches the device and refreshes its cached copy in the background.
func (s *Service) UpdateDevice(ctx context.Context, name string, patch DevicePatch) error {
	if err := s.api.UpdateDevice(ctx, name, patch); err != nil {
		return err
	}
	if err := s.devices.Refresh(name); err != nil {
		return err
	}
	s.flushListings()
	return nil
}

func (s *Service) AddDevice(ctx context.Context, d Device) (Device, error) {
	out, err := s.api.AddDevice(ctx, d)
	if err != nil {
		return out, err
	}
	s.queries.FlushAll()
	return out, nil
}

// WakeUp sends a wake-on-LAN request and then marks the device's history stale.
func (s *Service) WakeUp(ctx context.Context, name string) (AwakeResult, error) {
	res, err := s.api.WakeUp(ctx, name)
	if err != nil {
		return res, err
	}
	s.obsoleteHistoryOf(name)
	return res, nil
}

// Ping marks the device's history stale and then asks the backend to ping it.
// History is invalidated first so readers refetch while the ping runs.
func (s *Service) Ping(ctx context.Context, name string) (PingResult, error) {
	s.obsoleteHistoryOf(name)
	return s.api.Ping(ctx, name)
}

func (s *Service) flushListings() {
	s.queries.FlushAll()
	s.awakes.FlushAll()
	s.pings.FlushAll()
}

func (s *Service) obsoleteHistoryOf(name string) {
	forDevice := func(args []any) bool { return len(args) > 0 && args[0] == name }
	s.awakes.ObsoleteRange(func(_ AwakeHistory, args []any) bool { return forDevice(args) })
	s.pings.ObsoleteRange(func(_ PingHistory, args []any) bool { return forDevice(args) })
}

// ==============================
// Notifications
// ==============================

// HandleNotification applies a server push. Connection changes refresh the
// device, mark any history mentioning it stale and refresh its last ping.
// Other notification types are ignored.
func (s *Service) HandleNotification(n Notification) error {
	if n.Type != DeviceConnected && n.Type != DeviceDisconnected {
		return nil
	}
	name := n.Device.Name
	if err := s.devices.Refresh(name); err != nil {
		return err
	}
	s.awakes.ObsoleteRange(func(v AwakeHistory, _ []any) bool {
		return slices.ContainsFunc(v.Entries, func(e DeviceAwakeHistory) bool { return e.Name == name })
	})
	s.pings.ObsoleteRange(func(v PingHistory, _ []any) bool {
		return slices.ContainsFunc(v.Entries, func(e DevicePingHistory) bool { return e.Name == name })
	})
	return s.pings.Refresh(name, LastEntry())
}

// Listen applies notifications from ch until ctx ends or ch is closed.
func (s *Service) Listen(ctx context.Context, ch <-chan Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.HandleNotification(n); err != nil {
				s.log.Warn("notification not applied", livecache.Fields{"type": n.Type, "device": n.Device.Name, "err": err})
			}
		}
	}
}
