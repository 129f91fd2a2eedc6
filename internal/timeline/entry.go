package timeline

import "time"

// Origin identifies who produced a timeline entry.
type Origin string

const (
	OriginUser        Origin = "user"
	OriginCounterpart Origin = "counterpart"
	OriginSystem      Origin = "system"
	OriginError       Origin = "error"
)

// Kind identifies the content kind of a timeline entry.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindVoice Kind = "voice"
)

// KindFromWire maps a wire message_type or reply_type to a Kind.
// Unknown values degrade to text so a new server-side type never
// breaks the timeline.
func KindFromWire(s string) Kind {
	switch s {
	case "image":
		return KindImage
	case "video":
		return KindVideo
	case "voice":
		return KindVoice
	default:
		return KindText
	}
}

// Entry is one element of the conversation timeline. Entries are owned
// exclusively by Store: appended, never reordered after insertion,
// with the initial history load as the single exception.
type Entry struct {
	Origin   Origin
	Kind     Kind
	Body     string
	Locator  string
	Filename string

	Timestamp time.Time

	// Optimistic marks a local echo shown before service confirmation.
	Optimistic bool
	// Confirmed is set once a service echo with the same correlation
	// id arrives.
	Confirmed bool
	// CorrelationID ties an optimistic echo to its service echo.
	CorrelationID string
}
