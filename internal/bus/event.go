package bus

import "time"

// Event kinds published by chatsync components. Subscribers filter by
// namespace prefix, e.g. "timeline." receives every timeline event.
const (
	KindStateChanged   = "conn.state_changed"
	KindConnReady      = "conn.ready"
	KindConnClosed     = "conn.closed"
	KindFrameDropped   = "conn.frame_dropped"
	KindQueueOverflow  = "conn.queue_overflow"
	KindTimelineAppend = "timeline.appended"
	KindTimelineLocal  = "timeline.local_appended"
	KindConfirmed      = "timeline.confirmed"
	KindHistoryLoaded  = "history.page_loaded"
	KindHistoryFailed  = "history.page_failed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
