package iot

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the backend has no such device.
var ErrNotFound = errors.New("iot: not found")

// API is the devices backend.
type API interface {
	Device(ctx context.Context, name string) (Device, error)
	FindDevices(ctx context.Context, q FindOptions) (Collection[Device], error)
	FindPingHistory(ctx context.Context, q FindOptions) (Collection[DevicePingHistory], error)
	FindAwakeHistory(ctx context.Context, q FindOptions) (Collection[DeviceAwakeHistory], error)

	AddDevice(ctx context.Context, d Device) (Device, error)
	UpdateDevice(ctx context.Context, name string, patch DevicePatch) error
	DeleteDevice(ctx context.Context, name string) error
	WakeUp(ctx context.Context, name string) (AwakeResult, error)
	Ping(ctx context.Context, name string) (PingResult, error)
}

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("iot: %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Unwrap maps 404 to ErrNotFound.
func (e *StatusError) Unwrap() error {
	if e.Code == 404 {
		return ErrNotFound
	}
	return nil
}

// byName narrows q to records of one device, keeping any filter q already has.
func byName(name string, q FindOptions) FindOptions {
	clauses := []any{map[string]any{"name": map[string]any{"$eq": name}}}
	if len(q.Filter) > 0 {
		clauses = append(clauses, q.Filter)
	}
	q.Filter = map[string]any{"$and": clauses}
	return q
}
