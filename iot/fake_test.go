package iot

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

func testClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
}

// fakeAPI is an in-memory backend that counts calls per method.
type fakeAPI struct {
	clock clockwork.Clock

	mu      sync.Mutex
	devices map[string]Device
	online  map[string]bool
	pings   []DevicePingHistory
	awakes  []DeviceAwakeHistory
	calls   map[string]int
}

func newFakeAPI(clock clockwork.Clock, devices ...Device) *fakeAPI {
	f := &fakeAPI{
		clock:   clock,
		devices: make(map[string]Device),
		online:  make(map[string]bool),
		calls:   make(map[string]int),
	}
	for _, d := range devices {
		f.devices[d.Name] = d
	}
	return f
}

func (f *fakeAPI) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeAPI) hit(method string) {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()
}

func (f *fakeAPI) setOnline(name string, on bool) {
	f.mu.Lock()
	f.online[name] = on
	f.mu.Unlock()
}

func (f *fakeAPI) addPing(p DevicePingHistory) {
	f.mu.Lock()
	f.pings = append(f.pings, p)
	f.mu.Unlock()
}

func (f *fakeAPI) Device(_ context.Context, name string) (Device, error) {
	f.hit("Device")
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[name]
	if !ok {
		return Device{}, &StatusError{Method: "GET", Path: "/devices/" + name, Code: 404}
	}
	return d, nil
}

func (f *fakeAPI) FindDevices(_ context.Context, q FindOptions) (Collection[Device], error) {
	f.hit("FindDevices")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out Collection[Device]
	for _, d := range f.devices {
		out.Entries = append(out.Entries, d)
	}
	slices.SortFunc(out.Entries, func(a, b Device) int { return strings.Compare(a.Name, b.Name) })
	out.Count = len(out.Entries)
	if q.Top > 0 && len(out.Entries) > q.Top {
		out.Entries = out.Entries[:q.Top]
	}
	return out, nil
}

func (f *fakeAPI) FindPingHistory(_ context.Context, q FindOptions) (Collection[DevicePingHistory], error) {
	f.hit("FindPingHistory")
	name := filteredName(q)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []DevicePingHistory
	for _, p := range f.pings {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return newestFirst(out, q.Top, func(p DevicePingHistory) time.Time { return p.CreatedAt }), nil
}

func (f *fakeAPI) FindAwakeHistory(_ context.Context, q FindOptions) (Collection[DeviceAwakeHistory], error) {
	f.hit("FindAwakeHistory")
	name := filteredName(q)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []DeviceAwakeHistory
	for _, a := range f.awakes {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return newestFirst(out, q.Top, func(a DeviceAwakeHistory) time.Time { return a.CreatedAt }), nil
}

func (f *fakeAPI) AddDevice(_ context.Context, d Device) (Device, error) {
	f.hit("AddDevice")
	f.mu.Lock()
	defer f.mu.Unlock()
	d.CreatedAt = f.clock.Now()
	f.devices[d.Name] = d
	return d, nil
}

func (f *fakeAPI) UpdateDevice(_ context.Context, name string, patch DevicePatch) error {
	f.hit("UpdateDevice")
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[name]
	if !ok {
		return &StatusError{Method: "PATCH", Path: "/devices/" + name, Code: 404}
	}
	if patch.IPAddress != "" {
		d.IPAddress = patch.IPAddress
	}
	if patch.MACAddress != "" {
		d.MACAddress = patch.MACAddress
	}
	d.UpdatedAt = f.clock.Now()
	f.devices[name] = d
	return nil
}

func (f *fakeAPI) DeleteDevice(_ context.Context, name string) error {
	f.hit("DeleteDevice")
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.devices, name)
	return nil
}

func (f *fakeAPI) WakeUp(_ context.Context, name string) (AwakeResult, error) {
	f.hit("WakeUp")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awakes = append(f.awakes, DeviceAwakeHistory{Name: name, Success: true, CreatedAt: f.clock.Now()})
	return AwakeResult{Success: true}, nil
}

func (f *fakeAPI) Ping(_ context.Context, name string) (PingResult, error) {
	f.hit("Ping")
	f.mu.Lock()
	defer f.mu.Unlock()
	on := f.online[name]
	p := DevicePingHistory{Name: name, IsAvailable: on, CreatedAt: f.clock.Now()}
	if on {
		ms := 1.5
		p.Ping = &ms
	}
	f.pings = append(f.pings, p)
	return PingResult{Success: on, Ping: p.Ping}, nil
}

// filteredName extracts the device name from a byName filter.
func filteredName(q FindOptions) string {
	and, _ := q.Filter["$and"].([]any)
	for _, c := range and {
		m, _ := c.(map[string]any)
		if eq, ok := m["name"].(map[string]any); ok {
			s, _ := eq["$eq"].(string)
			return s
		}
	}
	return ""
}

func newestFirst[T any](in []T, top int, at func(T) time.Time) Collection[T] {
	slices.SortFunc(in, func(a, b T) int { return at(b).Compare(at(a)) })
	out := Collection[T]{Count: len(in), Entries: in}
	if top > 0 && len(in) > top {
		out.Entries = in[:top]
	}
	if out.Entries == nil {
		out.Entries = []T{}
	}
	return out
}
