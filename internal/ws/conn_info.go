package ws

import "time"

// ConnInfo records handshake metadata for a connection, used when
// publishing connect/disconnect events to the bus.
type ConnInfo struct {
	ConnID      string
	IP          string
	DeviceID    string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
