package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/lucasreis/chatsync/internal/bus"
	"github.com/lucasreis/chatsync/internal/config"
	"github.com/lucasreis/chatsync/internal/conn"
	"github.com/lucasreis/chatsync/internal/history"
	"github.com/lucasreis/chatsync/internal/media"
	"github.com/lucasreis/chatsync/internal/queue"
	"github.com/lucasreis/chatsync/internal/status"
	"github.com/lucasreis/chatsync/internal/submit"
	"github.com/lucasreis/chatsync/internal/timeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxAttachmentMemory bounds the in-memory part of multipart parsing;
// larger files spill to disk.
const maxAttachmentMemory = 8 << 20

// Server is the daemon's local HTTP surface: timeline and health
// reads, submission and connection control, Prometheus metrics, and
// a server-sent event stream bridging the in-process bus to the
// rendering layer.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	listenAddr string
	logger     *zap.Logger
}

// NewServer builds the HTTP surface.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	registry *prometheus.Registry,
	b *bus.Bus,
	machine *status.Machine,
	q *queue.Buffer,
	store *timeline.Store,
	supervisor *conn.Supervisor,
	submitter *submit.Submitter,
	paginator *history.Paginator,
) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"state":        machine.Current(),
			"epoch":        machine.Epoch(),
			"queue_depth":  q.Len(),
			"timeline_len": store.Len(),
		})
	})
	mux.HandleFunc("GET /timeline", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, store.Entries())
	})
	mux.HandleFunc("POST /connect", func(w http.ResponseWriter, r *http.Request) {
		if err := supervisor.Connect(r.Context()); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"state": string(machine.Current())})
	})
	mux.HandleFunc("POST /disconnect", func(w http.ResponseWriter, _ *http.Request) {
		supervisor.Disconnect()
		writeJSON(w, http.StatusOK, map[string]string{"state": string(machine.Current())})
	})
	mux.HandleFunc("POST /messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		id, err := submitter.SubmitText(r.Context(), req.Text)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"correlation_id": id})
	})
	mux.HandleFunc("POST /attachments", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxAttachmentMemory); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		defer file.Close()

		id, err := submitter.SubmitMedia(r.Context(), submit.Attachment{
			MimeType: header.Header.Get("Content-Type"),
			Filename: header.Filename,
			Size:     header.Size,
			Data:     file,
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"correlation_id": id})
	})
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
			return
		}

		events, unsub := b.Subscribe("", 64)
		defer unsub()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case evt := <-events:
				payload, err := json.Marshal(map[string]any{
					"kind":      evt.Kind,
					"timestamp": evt.Timestamp,
					"payload":   evt.Payload,
				})
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
	mux.HandleFunc("POST /history/older", func(w http.ResponseWriter, r *http.Request) {
		if err := paginator.LoadMore(r.Context()); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, paginator.Cursor())
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		handler:    mux,
		listenAddr: cfg.ListenAddr,
		logger:     logger,
	}
}

// Handler exposes the route table for in-process serving.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks serving the HTTP surface until Stop or a listen error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}
	s.logger.Info("http surface listening", zap.String("addr", s.listenAddr))
	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the HTTP surface down gracefully.
func (s *Server) Stop(ctx context.Context) {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verr *media.ValidationError
	switch {
	case errors.Is(err, conn.ErrNotReady),
		errors.Is(err, conn.ErrAlreadyConnected),
		errors.Is(err, history.ErrLoadInProgress):
		return http.StatusConflict
	case errors.Is(err, history.ErrNoMore):
		return http.StatusNoContent
	case errors.Is(err, submit.ErrEmptyText), errors.As(err, &verr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	if code == http.StatusNoContent {
		w.WriteHeader(code)
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
