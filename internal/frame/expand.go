package frame

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lucasreis/chatsync/internal/timeline"
)

// payloadItem is the superset of fields the service puts in frame
// data: live replies carry content + reply_type, error frames carry
// message, echoes of the client's own submissions carry message_type
// and correlation_id. Decoding once here removes all shape branching
// downstream.
type payloadItem struct {
	Content       string `json:"content"`
	Message       string `json:"message"`
	ReplyType     string `json:"reply_type"`
	MessageType   string `json:"message_type"`
	Filename      string `json:"filename"`
	IsSystem      bool   `json:"is_system"`
	CorrelationID string `json:"correlation_id"`
	Timestamp     string `json:"timestamp"`
}

// Expand normalizes an inbound envelope into the canonical list of
// timeline entries. The service sends data as a single object, a list
// of objects, or a bare string; all three shapes land here and nowhere
// else. System-flagged items are filtered out. An empty (fully
// filtered) result is valid and yields no entries.
func Expand(env *Envelope, now time.Time) ([]timeline.Entry, error) {
	items, err := decodeItems(env.Data)
	if err != nil {
		return nil, err
	}

	entries := make([]timeline.Entry, 0, len(items))
	for _, it := range items {
		if it.IsSystem {
			continue
		}
		entries = append(entries, itemEntry(env, it, now))
	}
	return entries, nil
}

func decodeItems(data json.RawMessage) ([]payloadItem, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrMalformed)
	}

	switch data[0] {
	case '[':
		var items []payloadItem
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return items, nil
	case '{':
		var item payloadItem
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return []payloadItem{item}, nil
	default:
		// Bare string content.
		var content string
		if err := json.Unmarshal(data, &content); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return []payloadItem{{Content: content}}, nil
	}
}

func itemEntry(env *Envelope, it payloadItem, now time.Time) timeline.Entry {
	body := it.Content
	if body == "" {
		body = it.Message
	}

	kind := it.ReplyType
	if kind == "" {
		kind = it.MessageType
	}

	origin := timeline.OriginCounterpart
	switch {
	case env.Type == TypeError:
		origin = timeline.OriginError
	case it.CorrelationID != "":
		// Echo of the client's own submission.
		origin = timeline.OriginUser
	}

	return timeline.Entry{
		Origin:        origin,
		Kind:          timeline.KindFromWire(kind),
		Body:          body,
		Filename:      it.Filename,
		Timestamp:     ParseTimestamp(it.Timestamp, now),
		CorrelationID: it.CorrelationID,
	}
}

// ParseTimestamp accepts RFC3339 with or without sub-second precision;
// anything else falls back to the given time, matching the service's
// own lenient timestamp handling.
func ParseTimestamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}
