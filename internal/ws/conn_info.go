package ws

import "time"

// ConnInfo captures the immutable facts of one websocket connection for
// logging and audit events. The live session key is tracked on the Session,
// not here: it can rotate while the connection stays up.
type ConnInfo struct {
	ConnID      string
	UserID      int
	SessionKey  string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
