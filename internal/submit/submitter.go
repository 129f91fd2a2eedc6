package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/lucasreis/chatsync/internal/bus"
	"github.com/lucasreis/chatsync/internal/conn"
	"github.com/lucasreis/chatsync/internal/frame"
	"github.com/lucasreis/chatsync/internal/media"
	"github.com/lucasreis/chatsync/internal/timeline"
	"go.uber.org/zap"
)

// ErrEmptyText is returned for a text submission with no content.
var ErrEmptyText = errors.New("empty text submission")

// ContentWriter sends an encoded content frame over the live
// connection. *conn.Supervisor satisfies this interface.
type ContentWriter interface {
	Ready() bool
	WriteContent(ctx context.Context, c frame.Content) error
}

// Attachment describes a media file to submit.
type Attachment struct {
	MimeType string
	Filename string
	Size     int64
	Data     io.Reader
}

// Submitter sends user content: optimistic insert into the timeline
// first, then the wire frame. The service echo carrying the same
// correlation id confirms the optimistic entry instead of duplicating
// it.
type Submitter struct {
	writer ContentWriter
	store  *timeline.Store
	bus    *bus.Bus
	logger *zap.Logger
}

// NewSubmitter creates a submitter.
func NewSubmitter(writer ContentWriter, store *timeline.Store, b *bus.Bus, logger *zap.Logger) *Submitter {
	return &Submitter{writer: writer, store: store, bus: b, logger: logger}
}

// SubmitText sends a text message. Returns the correlation id of the
// optimistic entry.
func (s *Submitter) SubmitText(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", ErrEmptyText
	}
	if !s.writer.Ready() {
		return "", conn.ErrNotReady
	}

	now := time.Now()
	id := uuid.NewString()

	// Optimistic insert: the message shows up immediately, marked
	// unconfirmed until the service echoes it back.
	entry := timeline.Entry{
		Origin:        timeline.OriginUser,
		Kind:          timeline.KindText,
		Body:          text,
		Timestamp:     now,
		CorrelationID: id,
	}
	s.store.AppendLocal(entry)
	s.bus.Emit(bus.KindTimelineLocal, id)

	err := s.writer.WriteContent(ctx, frame.Content{
		MessageType:   string(timeline.KindText),
		Content:       text,
		CorrelationID: id,
		Timestamp:     now.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.Error("text submission failed", zap.Error(err), zap.String("correlation_id", id))
		return id, fmt.Errorf("submitting text: %w", err)
	}
	return id, nil
}

// SubmitMedia validates, encodes, and sends an attachment. Validation
// happens before any encoding or transport work, so a rejected file
// never touches the connection. Returns the correlation id of the
// optimistic entry.
func (s *Submitter) SubmitMedia(ctx context.Context, a Attachment) (string, error) {
	cat, err := media.Validate(a.MimeType, a.Filename, a.Size)
	if err != nil {
		return "", err
	}
	if !s.writer.Ready() {
		return "", conn.ErrNotReady
	}

	res := <-media.Encode(ctx, a.MimeType, a.Data)
	if res.Err != nil {
		return "", fmt.Errorf("encoding attachment: %w", res.Err)
	}

	now := time.Now()
	id := uuid.NewString()

	entry := timeline.Entry{
		Origin:        timeline.OriginUser,
		Kind:          timeline.KindFromWire(string(cat)),
		Body:          a.Filename,
		Locator:       res.Preview,
		Filename:      a.Filename,
		Timestamp:     now,
		CorrelationID: id,
	}
	s.store.AppendLocal(entry)
	s.bus.Emit(bus.KindTimelineLocal, id)

	err = s.writer.WriteContent(ctx, frame.Content{
		MessageType:   string(cat),
		Content:       res.Payload,
		Filename:      a.Filename,
		CorrelationID: id,
		Timestamp:     now.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.Error("media submission failed", zap.Error(err),
			zap.String("correlation_id", id), zap.String("filename", a.Filename))
		return id, fmt.Errorf("submitting media: %w", err)
	}
	return id, nil
}

var _ ContentWriter = (*conn.Supervisor)(nil)
