package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/websocket"

	"webpool/internal/events"
	"webpool/internal/logger"
	"webpool/internal/metrics"
	"webpool/internal/worker"
)

type fixture struct {
	pool   *worker.Pool
	server *Server
	http   *httptest.Server
	bus    *events.Bus
}

func newFixture(t *testing.T, size int) *fixture {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.NewWithConfig(reg, metrics.DefaultConfig())
	bus := events.NewBus()

	pool := worker.New(size,
		worker.WithObserver(m),
		worker.WithEventBus(bus),
		worker.WithLogger(logger.New(io.Discard, logger.LevelError)),
	)

	srv := NewServer("", pool, m, reg, bus)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		_ = pool.Close()
	})

	return &fixture{pool: pool, server: srv, http: ts, bus: bus}
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestHandleStatus(t *testing.T) {
	f := newFixture(t, 3)

	var status StatusResponse
	getJSON(t, f.http.URL+"/api/status", &status)

	if status.Size != 3 || status.LiveWorkers != 3 {
		t.Errorf("expected 3/3 workers, got %d/%d", status.LiveWorkers, status.Size)
	}
	if status.Closed {
		t.Error("expected pool to be open")
	}
}

func TestHandleStatusReportsFaults(t *testing.T) {
	f := newFixture(t, 2)

	done := make(chan struct{})
	_ = f.pool.Execute(func() {
		defer close(done)
		panic("bad job")
	})
	<-done

	deadline := time.Now().Add(time.Second)
	for f.pool.Live() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	var status StatusResponse
	getJSON(t, f.http.URL+"/api/status", &status)

	if status.LiveWorkers != 1 {
		t.Errorf("expected 1 live worker, got %d", status.LiveWorkers)
	}
	if len(status.Faults) != 1 || !strings.Contains(status.Faults[0], "bad job") {
		t.Errorf("expected one fault mentioning the panic, got %v", status.Faults)
	}
}

func TestHandleWorkers(t *testing.T) {
	f := newFixture(t, 2)

	var workers []WorkerResponse
	getJSON(t, f.http.URL+"/api/workers", &workers)

	if len(workers) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(workers))
	}
	for i, w := range workers {
		if w.ID != i || w.State != "Running" {
			t.Errorf("unexpected worker %d: %+v", i, w)
		}
	}
}

func TestHandleMetrics(t *testing.T) {
	f := newFixture(t, 2)

	for range 5 {
		_ = f.pool.Execute(func() {})
	}
	_ = f.pool.Close()

	var snap metrics.Snapshot
	getJSON(t, f.http.URL+"/api/metrics", &snap)

	if snap.Submitted != 5 || snap.Completed != 5 {
		t.Errorf("expected 5 submitted and completed, got %+v", snap)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	f := newFixture(t, 2)
	_ = f.pool.Execute(func() {})

	resp, err := http.Get(f.http.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "webpool_workers_live") {
		t.Errorf("expected workers_live metric in output")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, 1)

	for _, path := range []string{"/api/status", "/api/workers", "/api/metrics"} {
		resp, err := http.Post(f.http.URL+path, "application/json", strings.NewReader("{}"))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: expected 405, got %d", path, resp.StatusCode)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	pool := worker.New(1, worker.WithLogger(logger.New(io.Discard, logger.LevelError)))
	defer pool.Close()

	srv := NewServer("", pool, nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without metrics, got %d", rec.Code)
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	f := newFixture(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.server.broadcastLoop(ctx)

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	ws, err := websocket.Dial(wsURL, "", f.http.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(time.Second)
	for f.server.clientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	// broadcastLoop の購読が済むまで待つ
	for f.bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	f.bus.Publish(events.NewWorkerExitedEvent(0, 7))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg struct {
			Type  string       `json:"type"`
			Event events.Event `json:"event"`
		}
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			t.Fatalf("receive: %v", err)
		}
		if msg.Type != "event" {
			continue
		}
		if msg.Event.Type != events.EventWorkerExited || msg.Event.Data.JobsRun != 7 {
			t.Errorf("unexpected event %+v", msg.Event)
		}
		return
	}
}
