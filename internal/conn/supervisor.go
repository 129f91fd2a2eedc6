package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/lucasreis/chatsync/internal/bus"
	"github.com/lucasreis/chatsync/internal/frame"
	"github.com/lucasreis/chatsync/internal/media"
	"github.com/lucasreis/chatsync/internal/metrics"
	"github.com/lucasreis/chatsync/internal/queue"
	"github.com/lucasreis/chatsync/internal/status"
	"github.com/lucasreis/chatsync/internal/timeline"
	"go.uber.org/zap"
)

// ErrAlreadyConnected is returned when Connect is called while a
// connection attempt or session is live. Overlapping connects are
// rejected outright, never queued.
var ErrAlreadyConnected = errors.New("connection already live")

// ErrNotReady is returned when a content frame is submitted outside
// the Ready state. The check happens before any transport interaction.
var ErrNotReady = errors.New("connection not ready")

// HistoryLoader triggers the one-shot initial history load on the
// ready confirmation. *history.Paginator satisfies this interface.
type HistoryLoader interface {
	LoadInitial(ctx context.Context) error
}

// Config holds the supervisor's connection parameters.
type Config struct {
	SocketURL string
	ClientID  string
	Timezone  string

	// HeartbeatTimeout tears the connection down when the transport
	// has been silent for longer. Zero disables the watchdog.
	HeartbeatTimeout time.Duration
}

// Supervisor owns the transport lifecycle. A single reader goroutine
// feeds every inbound frame through handleFrame, so dispatch is
// single-threaded and arrival order is preserved, including across
// the pre-ready buffering boundary. The supervisor guarantees exactly
// one live transport handle at a time.
type Supervisor struct {
	cfg      Config
	dial     Dialer
	machine  *status.Machine
	queue    *queue.Buffer
	store    *timeline.Store
	history  HistoryLoader
	resolver *media.Resolver
	bus      *bus.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// mu guards the transport handle and the reader cancel func.
	mu         sync.Mutex
	conn       Transport
	cancelLoop context.CancelFunc

	// writeMu serializes transport writes: pongs come from the reader
	// goroutine, content frames from submitters.
	writeMu sync.Mutex

	// lastInbound is the unix-nano arrival time of the newest frame,
	// read by the heartbeat watchdog.
	lastInbound atomic.Int64
}

// NewSupervisor creates a supervisor. dial may be nil, in which case
// the production WebSocket dialer is used.
func NewSupervisor(cfg Config, dial Dialer, machine *status.Machine, q *queue.Buffer,
	store *timeline.Store, history HistoryLoader, resolver *media.Resolver,
	b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Supervisor {
	if dial == nil {
		dial = Dial
	}
	return &Supervisor{
		cfg:      cfg,
		dial:     dial,
		machine:  machine,
		queue:    q,
		store:    store,
		history:  history,
		resolver: resolver,
		bus:      b,
		metrics:  m,
		logger:   logger,
	}
}

// Connect opens the transport and performs the identification half of
// the handshake. It is a no-op returning ErrAlreadyConnected while a
// connection is live in any form.
func (s *Supervisor) Connect(ctx context.Context) error {
	if s.machine.Is(status.Connecting, status.OpenUnacknowledged, status.Ready) {
		return ErrAlreadyConnected
	}
	if err := s.machine.Transition(status.Connecting); err != nil {
		return err
	}
	s.metrics.Connects.Inc()
	s.logger.Info("connecting", zap.String("url", s.cfg.SocketURL))

	conn, err := s.dial(ctx, s.cfg.SocketURL)
	if err != nil {
		s.teardown("dial failed")
		return fmt.Errorf("opening transport: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.conn = conn
	s.cancelLoop = cancel
	s.mu.Unlock()

	ident, err := frame.EncodeIdentification(s.cfg.ClientID, s.cfg.Timezone)
	if err != nil {
		s.teardown("identification encode failed")
		return fmt.Errorf("encoding identification: %w", err)
	}
	if err := s.write(loopCtx, ident); err != nil {
		s.teardown("identification send failed")
		return fmt.Errorf("sending identification: %w", err)
	}

	if err := s.machine.Transition(status.OpenUnacknowledged); err != nil {
		s.teardown("state conflict")
		return err
	}
	s.lastInbound.Store(time.Now().UnixNano())

	go s.readLoop(loopCtx, conn)
	if s.cfg.HeartbeatTimeout > 0 {
		go s.watchdog(loopCtx)
	}
	return nil
}

// Disconnect requests a graceful close with a normal-closure code.
// Idempotent: calling it without a live connection does nothing.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return
	}
	_ = s.machine.Transition(status.Closing)
	s.teardown("disconnect requested")
}

// Ready reports whether the session has passed the ready confirmation
// and accepts content submissions.
func (s *Supervisor) Ready() bool {
	return s.machine.Is(status.Ready)
}

// WriteContent sends an application-level content frame. Rejected
// with ErrNotReady unless the session is Ready; the state is read
// synchronously from the shared machine, the same value the frame
// handlers update.
func (s *Supervisor) WriteContent(ctx context.Context, c frame.Content) error {
	if !s.machine.Is(status.Ready) {
		return ErrNotReady
	}
	raw, err := frame.EncodeContent(c)
	if err != nil {
		return fmt.Errorf("encoding content frame: %w", err)
	}
	if err := s.write(ctx, raw); err != nil {
		return fmt.Errorf("sending content frame: %w", err)
	}
	s.metrics.SubmissionsSent.Inc()
	return nil
}

// readLoop is the event loop: one frame at a time, in arrival order.
func (s *Supervisor) readLoop(ctx context.Context, conn Transport) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Deliberate teardown already in progress; the reader
				// just exits instead of tearing down reentrantly.
				return
			}
			s.logger.Warn("transport closed", zap.Error(err))
			s.teardown("transport error")
			return
		}
		s.handleFrame(ctx, data)
	}
}

// handleFrame classifies one inbound frame and dispatches it to the
// heartbeat-reply, handshake, or timeline-append path.
func (s *Supervisor) handleFrame(ctx context.Context, raw []byte) {
	s.metrics.FramesReceived.Inc()
	s.lastInbound.Store(time.Now().UnixNano())

	// Heartbeats are answered immediately, regardless of Ready state.
	if frame.Sniff(raw) == frame.TypeHeartbeat {
		pong := frame.Pong(frame.HeartbeatTimestamp(raw), time.Now())
		if err := s.write(ctx, pong); err != nil {
			s.logger.Warn("heartbeat reply failed", zap.Error(err))
			return
		}
		s.metrics.HeartbeatsAnswered.Inc()
		return
	}

	env, err := frame.Decode(raw)
	if err != nil {
		s.dropFrame(err)
		return
	}

	if env.IsReadyConfirmation() {
		s.handleReady(ctx)
		return
	}
	if env.Type == frame.TypeSystem {
		// Other system frames carry no displayable content.
		return
	}

	if !s.machine.Is(status.Ready) {
		if evicted := s.queue.Push(raw); evicted {
			s.metrics.QueueOverflows.Inc()
			s.bus.Emit(bus.KindQueueOverflow, s.queue.Len())
		}
		s.metrics.FramesQueued.Inc()
		return
	}
	s.appendEnvelope(env)
}

// handleReady runs the ready sequence in order: transition to Ready,
// one-shot initial history load, then a strict FIFO flush of the
// pre-ready buffer. It runs on the reader goroutine, so frames that
// arrive during the history fetch are processed after the flush and
// global arrival order holds.
func (s *Supervisor) handleReady(ctx context.Context) {
	if err := s.machine.Transition(status.Ready); err != nil {
		// Duplicate or late confirmation.
		s.logger.Debug("ignoring ready confirmation", zap.Error(err))
		return
	}
	s.logger.Info("session ready")
	s.bus.Emit(bus.KindConnReady, nil)

	if s.history != nil {
		if err := s.history.LoadInitial(ctx); err != nil {
			// Displayed content stays unchanged; live traffic continues.
			s.logger.Warn("initial history load failed", zap.Error(err))
		}
	}

	for _, raw := range s.queue.Drain() {
		env, err := frame.Decode(raw)
		if err != nil {
			s.dropFrame(err)
			continue
		}
		s.appendEnvelope(env)
	}
}

// appendEnvelope expands a content frame into canonical timeline
// entries and appends them atomically.
func (s *Supervisor) appendEnvelope(env *frame.Envelope) {
	entries, err := frame.Expand(env, time.Now())
	if err != nil {
		s.dropFrame(err)
		return
	}
	for i := range entries {
		if entries[i].Kind != timeline.KindText && s.resolver != nil {
			entries[i].Locator = s.resolver.ResolveDisplayLocator(entries[i].Body, "")
		}
	}

	appended, confirmed := s.store.AppendRemote(entries)
	if appended > 0 {
		s.bus.Emit(bus.KindTimelineAppend, appended)
	}
	for _, id := range confirmed {
		s.bus.Emit(bus.KindConfirmed, id)
	}
}

// dropFrame records a malformed frame. The failure never propagates
// past the dispatch boundary: the next frame is processed normally.
func (s *Supervisor) dropFrame(err error) {
	s.metrics.FramesDropped.Inc()
	s.logger.Warn("dropping malformed frame", zap.Error(err))
	s.bus.Emit(bus.KindFrameDropped, err.Error())
}

// watchdog tears the connection down when the service has been silent
// past the heartbeat timeout.
func (s *Supervisor) watchdog(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			last := time.Unix(0, s.lastInbound.Load())
			if time.Since(last) > s.cfg.HeartbeatTimeout {
				s.logger.Warn("heartbeat timeout", zap.Time("last_inbound", last))
				s.teardown("heartbeat timeout")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// teardown executes the full reset: stop the reader first so the
// close cannot re-trigger teardown, discard the transport handle,
// drop all queued frames, and return to Idle. The epoch moves on the
// next Connect, so async results from this connection are discarded.
func (s *Supervisor) teardown(reason string) {
	s.mu.Lock()
	conn := s.conn
	cancel := s.cancelLoop
	s.conn = nil
	s.cancelLoop = nil
	s.mu.Unlock()

	if conn == nil && cancel == nil && s.machine.Current() == status.Idle {
		return
	}

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, reason)
	}

	s.queue.Drop()
	s.machine.Reset()
	s.metrics.Teardowns.Inc()
	s.logger.Info("connection torn down", zap.String("reason", reason))
	s.bus.Emit(bus.KindConnClosed, reason)
}

// write serializes transport writes across goroutines.
func (s *Supervisor) write(ctx context.Context, raw []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("no live transport")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.Write(ctx, websocket.MessageText, raw)
}
