package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lucasreis/chatsync/internal/bus"
	"github.com/lucasreis/chatsync/internal/frame"
	"github.com/lucasreis/chatsync/internal/media"
	"github.com/lucasreis/chatsync/internal/metrics"
	"github.com/lucasreis/chatsync/internal/timeline"
	"go.uber.org/zap"
)

// ErrLoadInProgress is returned when LoadMore is called while another
// fetch is outstanding. The second call is rejected, never queued.
var ErrLoadInProgress = errors.New("history load already in progress")

// ErrNoMore is returned when the cursor says the history is exhausted.
var ErrNoMore = errors.New("no more history")

// EpochSource reports the current connection epoch. Fetches capture
// the epoch they start under; a result whose epoch no longer matches
// is stale and discarded instead of applied to a newer connection.
type EpochSource interface {
	Epoch() uint64
}

// Cursor is the pagination state.
type Cursor struct {
	Offset  int
	Limit   int
	Total   int
	HasMore bool
}

// Paginator fetches ordered history pages and merges them into the
// timeline without duplication. A single loading flag serializes
// fetches; it is mutual exclusion, not a queue.
type Paginator struct {
	client   *Client
	store    *timeline.Store
	resolver *media.Resolver
	epochs   EpochSource
	bus      *bus.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger

	clientID string
	limit    int

	mu      sync.Mutex
	cursor  Cursor
	loading bool
}

// NewPaginator creates a paginator fetching pages of the given limit.
func NewPaginator(client *Client, store *timeline.Store, resolver *media.Resolver,
	epochs EpochSource, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger,
	clientID string, limit int) *Paginator {
	return &Paginator{
		client:   client,
		store:    store,
		resolver: resolver,
		epochs:   epochs,
		bus:      b,
		metrics:  m,
		logger:   logger,
		clientID: clientID,
		limit:    limit,
	}
}

// Cursor returns the current pagination state.
func (p *Paginator) Cursor() Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Loading reports whether a fetch is outstanding.
func (p *Paginator) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// LoadInitial fetches the first history page and replaces the
// timeline's non-optimistic content with it, sorted ascending by
// event time. Called once per connection, on the ready confirmation.
func (p *Paginator) LoadInitial(ctx context.Context) error {
	if !p.begin() {
		return ErrLoadInProgress
	}
	defer p.end()

	epoch := p.epochs.Epoch()
	page, err := p.client.FetchPage(ctx, p.clientID, p.limit, 0)
	if err != nil {
		return p.fail(err)
	}
	if p.epochs.Epoch() != epoch {
		return p.stale()
	}

	p.store.ReplaceHistory(p.expand(page.Data))
	p.applyCursor(page.Pagination)

	if p.metrics != nil {
		p.metrics.HistoryPages.Inc()
	}
	p.bus.Emit(bus.KindHistoryLoaded, page.Pagination)
	return nil
}

// LoadMore fetches the next older page and merges it into the
// timeline preserving global chronological order. No-op when a load
// is outstanding or the history is exhausted. On failure the
// displayed content is unchanged and no retry is scheduled; the
// caller may simply invoke LoadMore again.
func (p *Paginator) LoadMore(ctx context.Context) error {
	p.mu.Lock()
	if p.loading {
		p.mu.Unlock()
		return ErrLoadInProgress
	}
	if !p.cursor.HasMore {
		p.mu.Unlock()
		return ErrNoMore
	}
	p.loading = true
	offset := p.cursor.Offset + p.limit
	p.mu.Unlock()
	defer p.end()

	epoch := p.epochs.Epoch()
	page, err := p.client.FetchPage(ctx, p.clientID, p.limit, offset)
	if err != nil {
		return p.fail(err)
	}
	if p.epochs.Epoch() != epoch {
		return p.stale()
	}

	p.store.MergeHistory(p.expand(page.Data))
	p.applyCursor(page.Pagination)

	if p.metrics != nil {
		p.metrics.HistoryPages.Inc()
	}
	p.bus.Emit(bus.KindHistoryLoaded, page.Pagination)
	return nil
}

func (p *Paginator) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loading {
		return false
	}
	p.loading = true
	return true
}

func (p *Paginator) end() {
	p.mu.Lock()
	p.loading = false
	p.mu.Unlock()
}

func (p *Paginator) applyCursor(pg Pagination) {
	p.mu.Lock()
	p.cursor = Cursor{
		Offset:  pg.Offset,
		Limit:   p.limit,
		Total:   pg.Total,
		HasMore: pg.HasMore,
	}
	p.mu.Unlock()
}

func (p *Paginator) fail(err error) error {
	if p.metrics != nil {
		p.metrics.HistoryFailures.Inc()
	}
	p.logger.Warn("history fetch failed", zap.Error(err))
	p.bus.Emit(bus.KindHistoryFailed, err.Error())
	return err
}

func (p *Paginator) stale() error {
	if p.metrics != nil {
		p.metrics.StaleResults.Inc()
	}
	p.logger.Info("discarding stale history page", zap.Uint64("epoch", p.epochs.Epoch()))
	return nil
}

// expand converts history items into timeline entries: each item
// yields the originating submission followed by its non-system
// replies, in response order, and the whole result is sorted ascending
// by event time. System-flagged items and replies never reach the
// display.
func (p *Paginator) expand(items []Item) []timeline.Entry {
	now := time.Now()
	entries := make([]timeline.Entry, 0, len(items))

	for _, it := range items {
		if it.IsSystem {
			continue
		}
		ts := frame.ParseTimestamp(it.ClientTimestamp, now)
		entries = append(entries, p.entry(timeline.OriginUser, it.MessageType, it.Content, ts))

		for _, r := range it.Replies {
			if r.IsSystem {
				continue
			}
			entries = append(entries, p.entry(timeline.OriginCounterpart, r.ReplyType, r.Content, ts))
		}
	}

	// Items arrive newest-first; the timeline is ascending. Stable sort
	// keeps each originator adjacent to its replies.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries
}

func (p *Paginator) entry(origin timeline.Origin, wireKind, content string, ts time.Time) timeline.Entry {
	kind := timeline.KindFromWire(wireKind)
	e := timeline.Entry{
		Origin:    origin,
		Kind:      kind,
		Body:      content,
		Timestamp: ts,
	}
	if kind != timeline.KindText && p.resolver != nil {
		e.Locator = p.resolver.ResolveDisplayLocator(content, "")
	}
	return e
}
