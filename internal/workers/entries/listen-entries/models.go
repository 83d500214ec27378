// internal/workers/entries/listen-entries/models.go
package listenentries

import "time"

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateListening    State = "listening"
	StateError        State = "error"
	StateStopped      State = "stopped"
)

var allStates = []State{StateDisconnected, StateConnecting, StateListening, StateError, StateStopped}

// Payload is one raw message received on a channel.
type Payload struct {
	Channel string
	Data    []byte
}

// Health is a best-effort snapshot of the listener.
type Health struct {
	State       State     `json:"state"`
	Channel     string    `json:"channel"`
	Reconnects  int       `json:"reconnects"`
	LastError   string    `json:"lastError,omitempty"`
	LastEventAt time.Time `json:"lastEventAt,omitempty"`
	Decoded     int64     `json:"decoded"`
	Dropped     int64     `json:"dropped"`
}

// Healthy reports whether the subscription is currently up.
func (h Health) Healthy() bool {
	return h.State == StateListening
}
