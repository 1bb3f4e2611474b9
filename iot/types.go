package iot

import "time"

// Device is a network device that can be pinged and woken over LAN.
// Name is the unique identifier.
type Device struct {
	Name       string    `json:"name" cbor:"name"`
	IPAddress  string    `json:"ipAddress" cbor:"ipAddress"`
	MACAddress string    `json:"macAddress" cbor:"macAddress"`
	CreatedAt  time.Time `json:"createdAt" cbor:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" cbor:"updatedAt"`
}

// DevicePatch lists the fields UpdateDevice may change. Empty fields are left alone.
type DevicePatch struct {
	Name       string `json:"name,omitempty"`
	IPAddress  string `json:"ipAddress,omitempty"`
	MACAddress string `json:"macAddress,omitempty"`
}

type DevicePingHistory struct {
	Name        string    `json:"name" cbor:"name"`
	IPAddress   string    `json:"ipAddress" cbor:"ipAddress"`
	IsAvailable bool      `json:"isAvailable" cbor:"isAvailable"`
	Ping        *float64  `json:"ping,omitempty" cbor:"ping,omitempty"` // round trip in ms
	CreatedAt   time.Time `json:"createdAt" cbor:"createdAt"`
}

type DeviceAwakeHistory struct {
	Name      string    `json:"name" cbor:"name"`
	Success   bool      `json:"success" cbor:"success"`
	CreatedAt time.Time `json:"createdAt" cbor:"createdAt"`
}

// FindOptions is a collection query. Filter uses the backend's operator
// syntax, e.g. {"name": {"$eq": "lamp"}}.
type FindOptions struct {
	Top    int               `json:"top,omitempty"`
	Skip   int               `json:"skip,omitempty"`
	Order  map[string]string `json:"order,omitempty"`
	Select []string          `json:"select,omitempty"`
	Filter map[string]any    `json:"filter,omitempty"`
}

// LastEntry selects the newest history record.
func LastEntry() FindOptions {
	return FindOptions{Top: 1, Order: map[string]string{"createdAt": "DESC"}}
}

// Collection is one page of query results.
type Collection[T any] struct {
	Count   int `json:"count" cbor:"count"`
	Entries []T `json:"entries" cbor:"entries"`
}

type AwakeResult struct {
	Success bool `json:"success"`
}

type PingResult struct {
	Success bool     `json:"success"`
	Ping    *float64 `json:"ping,omitempty"`
}

// Notification types pushed by the backend.
const (
	DeviceConnected    = "device-connected"
	DeviceDisconnected = "device-disconnected"
)

// Notification is a server push about a device.
type Notification struct {
	Type   string `json:"type"`
	Device Device `json:"device"`
}
