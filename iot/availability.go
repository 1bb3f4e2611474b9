package iot

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/livecache"
)

// FreshFor is how long a ping or wake-up record counts as current.
const FreshFor = time.Minute

// Availability summarizes a device's last ping.
type Availability int

const (
	// AvailabilityLoading means no ping history has been loaded yet.
	AvailabilityLoading Availability = iota
	// AvailabilityFailed means the ping history could not be loaded.
	AvailabilityFailed
	// AvailabilityUnknown means the device has never been pinged.
	AvailabilityUnknown
	// AvailabilityStale means the last ping is older than FreshFor.
	AvailabilityStale
	AvailabilityAvailable
	AvailabilityUnavailable
	// AvailabilityWaking means the device did not answer but was woken up recently.
	AvailabilityWaking
)

func (a Availability) String() string {
	switch a {
	case AvailabilityLoading:
		return "loading"
	case AvailabilityFailed:
		return "failed"
	case AvailabilityUnknown:
		return "unknown"
	case AvailabilityStale:
		return "stale"
	case AvailabilityAvailable:
		return "available"
	case AvailabilityUnavailable:
		return "unavailable"
	case AvailabilityWaking:
		return "waking"
	default:
		return "invalid"
	}
}

// AvailabilityOf classifies a last-ping snapshot as seen at now.
// An Obsolete snapshot is classified by its value; callers may render it dimmed.
func AvailabilityOf(last livecache.Entry[PingHistory], now time.Time) Availability {
	if last.Status == livecache.StatusFailed {
		return AvailabilityFailed
	}
	if !last.HasValue() {
		return AvailabilityLoading
	}
	if len(last.Value.Entries) == 0 {
		return AvailabilityUnknown
	}
	p := last.Value.Entries[0]
	if !p.CreatedAt.After(now.Add(-FreshFor)) {
		return AvailabilityStale
	}
	if p.IsAvailable {
		return AvailabilityAvailable
	}
	return AvailabilityUnavailable
}

// Check reads the device's last ping and reports its availability. A stale
// ping triggers a new ping followed by a reload. An unavailable device that
// was woken within FreshFor reports AvailabilityWaking.
func (s *Service) Check(ctx context.Context, name string) (Availability, error) {
	last, err := s.pings.GetEntry(ctx, name, LastEntry())
	if err != nil {
		var le *livecache.LoadError
		if errors.As(err, &le) {
			return AvailabilityFailed, err
		}
		return AvailabilityLoading, err
	}

	a := AvailabilityOf(last, s.clock.Now())
	switch a {
	case AvailabilityStale:
		if _, err := s.Ping(ctx, name); err != nil {
			return a, err
		}
		fresh, err := s.ReloadLastPing(ctx, name)
		if err != nil {
			return a, err
		}
		a = AvailabilityOf(livecache.Entry[PingHistory]{Status: livecache.StatusLoaded, Value: fresh}, s.clock.Now())
		if a != AvailabilityUnavailable {
			return a, nil
		}
		fallthrough
	case AvailabilityUnavailable:
		awake, err := s.awakes.Get(ctx, name, LastEntry())
		if err != nil {
			return a, err
		}
		if len(awake.Entries) > 0 && awake.Entries[0].CreatedAt.After(s.clock.Now().Add(-FreshFor)) {
			return AvailabilityWaking, nil
		}
	}
	return a, nil
}
