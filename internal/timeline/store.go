package timeline

import "sync"

// Store is the single ordered conversation timeline. Entries from the
// router, the history paginator and local optimistic submissions all
// land here. The store is passive: it never talks to the transport or
// the bus, callers publish their own notifications.
//
// Ordering invariant: relative order within one append call is
// preserved, and entries are never reordered after insertion. The
// initial history replace and older-page merges are the only calls
// allowed to rearrange the prefix, and they never swap two entries
// that are already present relative to each other.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewStore creates an empty timeline store.
func NewStore() *Store {
	return &Store{}
}

// AppendLocal appends an optimistic echo immediately on user
// submission.
func (s *Store) AppendLocal(e Entry) {
	e.Optimistic = true
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
}

// AppendRemote appends one or more confirmed inbound entries
// atomically. An entry whose correlation id matches a pending
// optimistic echo confirms that echo instead of being appended,
// so the user's own message is not shown twice.
// Returns the number of entries appended and the correlation ids
// confirmed.
func (s *Store) AppendRemote(entries []Entry) (appended int, confirmed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.CorrelationID != "" && s.confirmLocked(e.CorrelationID) {
			confirmed = append(confirmed, e.CorrelationID)
			continue
		}
		s.entries = append(s.entries, e)
		appended++
	}
	return appended, confirmed
}

// confirmLocked marks the newest matching unconfirmed optimistic echo
// as confirmed. Reports whether one was found.
func (s *Store) confirmLocked(correlationID string) bool {
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := &s.entries[i]
		if e.Optimistic && !e.Confirmed && e.CorrelationID == correlationID {
			e.Confirmed = true
			return true
		}
	}
	return false
}

// ReplaceHistory replaces all non-optimistic content with the given
// history entries (already sorted ascending by event time). Optimistic
// echoes survive and keep their relative order after the history
// prefix. This is the one-time ordering exception of the initial load.
func (s *Store) ReplaceHistory(hist []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Optimistic {
			kept = append(kept, e)
		}
	}
	s.entries = append(append(make([]Entry, 0, len(hist)+len(kept)), hist...), kept...)
}

// MergeHistory merges an older history page (sorted ascending) into
// the timeline, preserving global chronological order. Entries already
// present never move relative to each other: each page entry is
// inserted before the first existing entry with a later timestamp.
func (s *Store) MergeHistory(page []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(page) == 0 {
		return
	}

	merged := make([]Entry, 0, len(s.entries)+len(page))
	i, j := 0, 0
	for i < len(s.entries) && j < len(page) {
		// Existing entries win ties so a re-delivered boundary item
		// cannot jump ahead of what the user already sees.
		if s.entries[i].Timestamp.After(page[j].Timestamp) {
			merged = append(merged, page[j])
			j++
		} else {
			merged = append(merged, s.entries[i])
			i++
		}
	}
	merged = append(merged, s.entries[i:]...)
	merged = append(merged, page[j:]...)
	s.entries = merged
}

// Entries returns a snapshot of the timeline.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of timeline entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
