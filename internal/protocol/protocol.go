package protocol

import "time"

// MessageType defines the type of websocket status message
type MessageType string

const (
	// TypeHello is sent to a client right after it connects, carrying the
	// full monitor state list
	TypeHello MessageType = "hello"

	// TypeState is sent whenever a monitor starts, stops or changes status
	TypeState MessageType = "state"

	// TypeReaction is sent after a trigger reaction has completed
	TypeReaction MessageType = "reaction"

	// TypeAttached is sent when the supervisor attaches to a process
	TypeAttached MessageType = "attached"

	// TypeDetached is sent when the supervisor detaches (explicitly or because the process exited)
	TypeDetached MessageType = "detached"

	// TypePing can be used for application-level heartbeats if needed
	TypePing MessageType = "ping"
)

// Message is the generic container for all websocket messages
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ReactionPayload is the payload for TypeReaction
type ReactionPayload struct {
	BindingID string        `json:"binding_id"`
	Value     int32         `json:"value"`
	Address   uint64        `json:"address"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Aborted   bool          `json:"aborted"`
}

// ProcessPayload is the payload for TypeAttached and TypeDetached
type ProcessPayload struct {
	PID    int    `json:"pid"`
	Reason string `json:"reason,omitempty"`
}
