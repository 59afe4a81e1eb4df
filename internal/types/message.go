package types

import "time"

// Message type constants. Frontend → backend types come first.
const (
	MsgAuth       = "auth"
	MsgContext    = "context"
	MsgScreenshot = "screenshot"
	MsgPing       = "ping"

	MsgAuthResponse    = "auth_response"
	MsgContextReceived = "context_received"
	MsgContextRequest  = "context_request"
	MsgScreenshotAck   = "screenshot_ack"
	MsgInstruction     = "instruction"
	MsgPong            = "pong"
	MsgError           = "error"
	MsgSystem          = "system"
)

// Message is the envelope for all session traffic, in both directions.
// Data is kept raw-ish (any) because the payload shape is determined by
// Type; instruction payloads are decoded separately with strict validation.
type Message struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id,omitempty"`
}

// NewMessage creates an envelope stamped with the current time.
func NewMessage(msgType string, data any) Message {
	return Message{
		Type:      msgType,
		Data:      data,
		Timestamp: NowMillis(),
	}
}

// NowMillis returns the current time as epoch milliseconds, the timestamp
// unit used across the wire protocol.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
