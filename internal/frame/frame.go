package frame

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Frame types used on the wire. Anything else is treated as a content
// frame and flows through the message path.
const (
	TypeSystem    = "system"
	TypeHeartbeat = "heartbeat"
	TypeMessage   = "message"
	TypeReply     = "reply"
	TypeError     = "error"
)

// ErrMalformed is wrapped by decode errors caused by structurally
// invalid frames. Such frames are logged and discarded at the dispatch
// boundary, never propagated.
var ErrMalformed = errors.New("malformed frame")

// Envelope is the decoded inbound frame envelope. Data stays raw until
// Expand normalizes it into timeline entries.
type Envelope struct {
	Type     string          `json:"type"`
	IsSystem bool            `json:"is_system,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// Sniff extracts the frame type tag without a full decode. Used by the
// router to pick the dispatch path; heartbeats in particular are
// answered before any further parsing.
func Sniff(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	return gjson.GetBytes(raw, "type").String()
}

// HeartbeatTimestamp returns the timestamp carried by a heartbeat
// frame, or "" when absent.
func HeartbeatTimestamp(raw []byte) string {
	return gjson.GetBytes(raw, "data.timestamp").String()
}

// Decode parses a raw frame into an Envelope.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type tag", ErrMalformed)
	}
	return &env, nil
}

// IsReadyConfirmation reports whether the envelope is the service's
// session confirmation ("Connected successfully").
func (e *Envelope) IsReadyConfirmation() bool {
	if e.Type != TypeSystem {
		return false
	}
	return gjson.GetBytes(e.Data, "message").Exists()
}
