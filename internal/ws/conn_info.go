package ws

import "time"

// ConnInfo carries the metadata captured at websocket handshake time. It is
// attached to every lifecycle event published for the connection, so a
// ws_error months into a session still correlates back to the original
// request and trace.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
