package httpdemo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"webpool/internal/logger"
	"webpool/internal/worker"
)

const (
	statusOK       = "HTTP/1.1 200 OK"
	statusNotFound = "HTTP/1.1 404 NOT FOUND"
	statusError    = "HTTP/1.1 500 INTERNAL SERVER ERROR"

	homePage  = "home.html"
	errorPage = "error_404.html"
)

// Executor はジョブを受け付ける側。worker.Pool が満たす
type Executor interface {
	Execute(job worker.Job) error
}

// Config はデモサーバーの設定
type Config struct {
	Addr           string
	ContentDir     string
	SleepDelay     time.Duration // GET /sleep で挿入する遅延
	MaxConnections int           // 0 で無制限。N 件受け付けたら Accept を止める
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:7878",
		ContentDir:   "examples/contents",
		SleepDelay:   5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Route はリクエスト行に対する応答の選択結果
type Route struct {
	Status string
	File   string
	Sleep  bool
}

// Resolve はリクエスト行を完全一致で応答に割り当てる
func Resolve(requestLine string) Route {
	switch requestLine {
	case "GET / HTTP/1.1":
		return Route{Status: statusOK, File: homePage}
	case "GET /sleep HTTP/1.1":
		return Route{Status: statusOK, File: homePage, Sleep: true}
	default:
		return Route{Status: statusNotFound, File: errorPage}
	}
}

// Server は接続ごとに1つのジョブをプールへ投入するTCPサーバー
type Server struct {
	config Config
	exec   Executor
	log    *logger.Logger

	accepted atomic.Int64
	served   atomic.Int64
	failed   atomic.Int64
}

// NewServer は新しいデモサーバーを作成する
func NewServer(config Config, exec Executor, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	return &Server{
		config: config,
		exec:   exec,
		log:    log,
	}
}

// ListenAndServe は config.Addr で待ち受けて Serve する
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve は ctx がキャンセルされるか MaxConnections 件に達するまで接続を受け付ける。
// リスナーは戻る前に閉じられる
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer func() {
		stop()
		_ = ln.Close()
	}()

	s.log.Info("", "Listening on %s", ln.Addr())

	for n := 0; s.config.MaxConnections == 0 || n < s.config.MaxConnections; n++ {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		s.accepted.Add(1)

		id := uuid.NewString()
		s.log.Debug(id, "Accepted connection from %s", conn.RemoteAddr())

		if err := s.exec.Execute(func() { s.handleConnection(id, conn) }); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to dispatch connection: %w", err)
		}
	}

	s.log.Info("", "Served %d connections; no longer accepting", s.config.MaxConnections)
	return nil
}

// handleConnection は1接続分のリクエストを処理する。ワーカー上で実行される
func (s *Server) handleConnection(id string, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	requestLine, err := readRequest(conn)
	if err != nil {
		s.failed.Add(1)
		s.log.Warn(id, "Failed to read request: %v", err)
		return
	}

	route := Resolve(requestLine)
	s.log.Debug(id, "%q -> %s", requestLine, route.Status)

	if route.Sleep && s.config.SleepDelay > 0 {
		time.Sleep(s.config.SleepDelay)
	}

	body, err := os.ReadFile(filepath.Join(s.config.ContentDir, route.File))
	if err != nil {
		s.log.Error(id, "Failed to read %s: %v", route.File, err)
		route.Status = statusError
		body = nil
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if _, err := conn.Write(buildResponse(route.Status, body)); err != nil {
		s.failed.Add(1)
		s.log.Warn(id, "Failed to write response: %v", err)
		return
	}
	s.served.Add(1)
}

// readRequest は空行までヘッダを読み、最初の行を返す
func readRequest(r io.Reader) (string, error) {
	br := bufio.NewReader(r)

	var first string
	for i := 0; ; i++ {
		line, err := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if i == 0 {
			if line == "" && err != nil {
				return "", err
			}
			first = line
		}
		if line == "" || err != nil {
			return first, nil
		}
	}
}

func buildResponse(status string, body []byte) []byte {
	header := fmt.Sprintf("%s\r\nContent-Length: %d\r\n\r\n", status, len(body))
	return append([]byte(header), body...)
}

// Stats は接続の統計
type Stats struct {
	Accepted int64 `json:"accepted"`
	Served   int64 `json:"served"`
	Failed   int64 `json:"failed"`
}

// Stats は現在の統計を返す
func (s *Server) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Served:   s.served.Load(),
		Failed:   s.failed.Load(),
	}
}
