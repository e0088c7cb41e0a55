package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	"webpool/internal/events"
	"webpool/internal/logger"
	"webpool/internal/metrics"
	"webpool/internal/worker"
)

// PoolView は管理APIが参照するプールの読み取り専用ビュー
type PoolView interface {
	Size() int
	Live() int
	Pending() int
	Closed() bool
	Workers() []worker.WorkerInfo
	Faults() []error
}

// Server は管理用APIサーバー
type Server struct {
	addr     string
	pool     PoolView
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	bus      *events.Bus

	mu        sync.RWMutex
	wsClients map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
// m, gatherer, bus は nil でもよい
func NewServer(addr string, pool PoolView, m *metrics.Metrics, gatherer prometheus.Gatherer, bus *events.Bus) *Server {
	return &Server{
		addr:      addr,
		pool:      pool,
		metrics:   m,
		gatherer:  gatherer,
		bus:       bus,
		wsClients: make(map[*websocket.Conn]bool),
	}
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/workers", s.handleWorkers)
	mux.HandleFunc("/api/metrics", s.handleMetrics)

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始し、ctx がキャンセルされるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// バックグラウンドでイベント配信
	go s.broadcastLoop(ctx)

	logger.Info("", "Admin server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Closed      bool     `json:"closed"`
	Size        int      `json:"size"`
	LiveWorkers int      `json:"live_workers"`
	Pending     int      `json:"pending"`
	Faults      []string `json:"faults,omitempty"`
}

func (s *Server) status() StatusResponse {
	resp := StatusResponse{
		Closed:      s.pool.Closed(),
		Size:        s.pool.Size(),
		LiveWorkers: s.pool.Live(),
		Pending:     s.pool.Pending(),
	}
	for _, err := range s.pool.Faults() {
		resp.Faults = append(resp.Faults, err.Error())
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.status())
}

// WorkerResponse はワーカー情報
type WorkerResponse struct {
	ID      int    `json:"id"`
	State   string `json:"state"`
	JobsRun int64  `json:"jobs_run"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := s.pool.Workers()
	workers := make([]WorkerResponse, 0, len(infos))
	for _, info := range infos {
		wr := WorkerResponse{
			ID:      info.ID,
			State:   info.State.String(),
			JobsRun: info.JobsRun,
		}
		if info.Err != nil {
			wr.Error = info.Err.Error()
		}
		workers = append(workers, wr)
	}

	s.writeJSON(w, workers)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.metrics == nil {
		http.Error(w, "Metrics disabled", http.StatusNotFound)
		return
	}

	s.writeJSON(w, s.metrics.Snapshot())
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

// broadcastLoop はプールのイベントと定期ステータスを WebSocket クライアントに配信する
func (s *Server) broadcastLoop(ctx context.Context) {
	var eventCh <-chan events.Event
	if s.bus != nil {
		sub := s.bus.Subscribe()
		defer s.bus.Unsubscribe(sub)
		eventCh = sub
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			s.broadcast(map[string]any{
				"type":  "event",
				"event": ev,
			})
		case <-ticker.C:
			if s.clientCount() == 0 {
				continue
			}
			s.broadcast(map[string]any{
				"type":   "status",
				"status": s.status(),
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("", "Failed to encode JSON: %v", err)
	}
}
