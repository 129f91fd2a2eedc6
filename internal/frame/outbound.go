package frame

import (
	"encoding/json"
	"time"
)

// Identification is the first frame sent after the transport opens.
type Identification struct {
	ClientID string `json:"client_id"`
	Timezone string `json:"timezone"`
}

// Content is an application-level content frame. Sent only while the
// connection is ready.
type Content struct {
	MessageType   string `json:"message_type"`
	Content       string `json:"content"`
	Filename      string `json:"filename,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// heartbeatReply is the pong frame shape.
type heartbeatReply struct {
	Type string        `json:"type"`
	Data heartbeatData `json:"data"`
}

type heartbeatData struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Pong builds a heartbeat reply echoing the given timestamp, or
// stamping now when the ping carried none.
func Pong(echoTimestamp string, now time.Time) []byte {
	ts := echoTimestamp
	if ts == "" {
		ts = now.Format(time.RFC3339Nano)
	}
	raw, _ := json.Marshal(heartbeatReply{
		Type: TypeHeartbeat,
		Data: heartbeatData{Message: "pong", Timestamp: ts},
	})
	return raw
}

// EncodeIdentification marshals the identification frame.
func EncodeIdentification(clientID, timezone string) ([]byte, error) {
	return json.Marshal(Identification{ClientID: clientID, Timezone: timezone})
}

// EncodeContent marshals a content frame.
func EncodeContent(c Content) ([]byte, error) {
	return json.Marshal(c)
}
