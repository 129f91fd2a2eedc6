package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/lucasreis/chatsync/internal/bus"
	"github.com/lucasreis/chatsync/internal/config"
	"github.com/lucasreis/chatsync/internal/conn"
	"github.com/lucasreis/chatsync/internal/history"
	"github.com/lucasreis/chatsync/internal/media"
	"github.com/lucasreis/chatsync/internal/metrics"
	"github.com/lucasreis/chatsync/internal/queue"
	"github.com/lucasreis/chatsync/internal/status"
	"github.com/lucasreis/chatsync/internal/submit"
	"github.com/lucasreis/chatsync/internal/timeline"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// idleTransport never delivers a frame and blocks until cancelled.
type idleTransport struct{}

func (idleTransport) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	<-ctx.Done()
	return 0, nil, ctx.Err()
}

func (idleTransport) Write(context.Context, websocket.MessageType, []byte) error { return nil }
func (idleTransport) Close(websocket.StatusCode, string) error                   { return nil }

type surface struct {
	ts      *httptest.Server
	bus     *bus.Bus
	machine *status.Machine
	store   *timeline.Store
}

func newTestSurface(t *testing.T) *surface {
	t.Helper()

	cfg := &config.Config{
		ServerURL:    "http://127.0.0.1:1", // never dialed in this test
		ClientID:     "client-1",
		Timezone:     "UTC",
		HistoryLimit: 50,
		ListenAddr:   "127.0.0.1:0",
	}

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	store := timeline.NewStore()
	q := queue.New(16)
	resolver := media.NewResolver(cfg.ServerURL)
	client := history.NewClient(cfg.ServerURL, &http.Client{Timeout: time.Second})
	paginator := history.NewPaginator(client, store, resolver, machine, b, m, logger,
		cfg.ClientID, cfg.HistoryLimit)

	dial := func(context.Context, string) (conn.Transport, error) { return idleTransport{}, nil }
	supervisor := conn.NewSupervisor(conn.Config{
		SocketURL: "ws://127.0.0.1:1/ws",
		ClientID:  cfg.ClientID,
		Timezone:  cfg.Timezone,
	}, dial, machine, q, store, paginator, resolver, b, m, logger)
	t.Cleanup(supervisor.Disconnect)

	submitter := submit.NewSubmitter(supervisor, store, b, logger)

	srv := NewServer(cfg, logger, registry, b, machine, q, store, supervisor, submitter, paginator)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &surface{ts: ts, bus: b, machine: machine, store: store}
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	sf := newTestSurface(t)
	ts, store := sf.ts, sf.store
	store.AppendRemote([]timeline.Entry{{Body: "a", Timestamp: time.Now()}})

	var health struct {
		State       string `json:"state"`
		QueueDepth  int    `json:"queue_depth"`
		TimelineLen int    `json:"timeline_len"`
	}
	if code := getJSON(t, ts.URL+"/healthz", &health); code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", code)
	}
	if health.State != string(status.Idle) {
		t.Errorf("state = %q, want %q", health.State, status.Idle)
	}
	if health.TimelineLen != 1 {
		t.Errorf("timeline_len = %d, want 1", health.TimelineLen)
	}
}

func TestTimelineEndpoint(t *testing.T) {
	sf := newTestSurface(t)
	ts, store := sf.ts, sf.store
	store.AppendRemote([]timeline.Entry{
		{Origin: timeline.OriginCounterpart, Kind: timeline.KindText, Body: "hi", Timestamp: time.Now()},
	})

	var entries []timeline.Entry
	if code := getJSON(t, ts.URL+"/timeline", &entries); code != http.StatusOK {
		t.Fatalf("GET /timeline = %d, want 200", code)
	}
	if len(entries) != 1 || entries[0].Body != "hi" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestMetricsServed(t *testing.T) {
	sf := newTestSurface(t)
	ts := sf.ts

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "chatsync_") {
		t.Error("metrics output missing chatsync_ series")
	}
}

func TestSendRejectedWhenNotConnected(t *testing.T) {
	sf := newTestSurface(t)
	ts, machine, store := sf.ts, sf.machine, sf.store
	if machine.Current() != status.Idle {
		t.Fatalf("precondition: state = %s", machine.Current())
	}

	resp, err := http.Post(ts.URL+"/messages", "application/json",
		strings.NewReader(`{"text":"hello"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("POST /messages = %d, want 409", resp.StatusCode)
	}
	if store.Len() != 0 {
		t.Error("rejected submission reached the timeline")
	}
}

func TestConnectThenDisconnect(t *testing.T) {
	sf := newTestSurface(t)
	ts, machine := sf.ts, sf.machine

	resp, err := http.Post(ts.URL+"/connect", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /connect = %d, want 202", resp.StatusCode)
	}
	if machine.Current() != status.OpenUnacknowledged {
		t.Errorf("state = %s, want %s", machine.Current(), status.OpenUnacknowledged)
	}

	// Second connect while live is a conflict.
	resp, err = http.Post(ts.URL+"/connect", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second POST /connect = %d, want 409", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/disconnect", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("POST /disconnect = %d, want 200", resp.StatusCode)
	}
	if machine.Current() != status.Idle {
		t.Errorf("state after disconnect = %s, want %s", machine.Current(), status.Idle)
	}
}

func TestAttachmentRejectedByValidation(t *testing.T) {
	sf := newTestSurface(t)
	ts := sf.ts

	body := &strings.Builder{}
	// hand-built multipart body with an unsupported content type
	boundary := "testboundary"
	body.WriteString("--" + boundary + "\r\n")
	body.WriteString(`Content-Disposition: form-data; name="file"; filename="a.zip"` + "\r\n")
	body.WriteString("Content-Type: application/zip\r\n\r\n")
	body.WriteString("payload\r\n")
	body.WriteString("--" + boundary + "--\r\n")

	resp, err := http.Post(ts.URL+"/attachments",
		"multipart/form-data; boundary="+boundary, strings.NewReader(body.String()))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("POST /attachments = %d, want 400", resp.StatusCode)
	}
}

func TestEventsStreamDeliversBusEvents(t *testing.T) {
	sf := newTestSurface(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sf.ts.URL+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /events = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	// Publish until the subscription is live and a line comes through.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				sf.bus.Emit(bus.KindTimelineAppend, 1)
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("decoding event line %q: %v", line, err)
		}
		if evt.Kind != bus.KindTimelineAppend {
			t.Errorf("kind = %q, want %q", evt.Kind, bus.KindTimelineAppend)
		}
		return
	}
	t.Fatal("stream ended without delivering an event")
}

func TestHistoryOlderWithoutPages(t *testing.T) {
	sf := newTestSurface(t)
	ts := sf.ts

	// No initial load has happened, so the cursor reports no more pages.
	resp, err := http.Post(ts.URL+"/history/older", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("POST /history/older = %d, want 204", resp.StatusCode)
	}
}
