package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"webpool/internal/logger"
	"webpool/internal/worker"
)

// Config はClientの設定
type Config struct {
	Addr        string        // 対象サーバーのアドレス
	NumWorkers  int           // 同時接続数（ワーカー数）
	SleepRatio  float64       // GET /sleep の比率（0.0〜1.0）
	MissRatio   float64       // 存在しないパスの比率（0.0〜1.0）
	DialTimeout time.Duration // 接続と読み書きのタイムアウト
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Addr:        "127.0.0.1:7878",
		NumWorkers:  4,
		SleepRatio:  0,
		MissRatio:   0.1,
		DialTimeout: 10 * time.Second,
	}
}

// Result は負荷生成の結果
type Result struct {
	Requests       uint64
	Failures       uint64
	StatusCounts   map[string]uint64
	AverageLatency time.Duration
	P99Latency     time.Duration
	Elapsed        time.Duration
}

// Report は結果を人間向けの文字列にする
func (r Result) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Requests: %d, Failures: %d, Elapsed: %v\n", r.Requests, r.Failures, r.Elapsed)
	fmt.Fprintf(&b, "Latency: avg=%v p99=%v\n", r.AverageLatency, r.P99Latency)

	statuses := make([]string, 0, len(r.StatusCounts))
	for s := range r.StatusCounts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(&b, "  %-28s %d\n", s, r.StatusCounts[s])
	}
	return b.String()
}

// Client はデモサーバー向けの負荷生成器。
// 各リクエストは worker.Pool 上のジョブとして実行される
type Client struct {
	config Config
	log    *logger.Logger

	requests atomic.Uint64
	failures atomic.Uint64

	mu        sync.Mutex
	statuses  map[string]uint64
	latencies []time.Duration
}

// New は新しいClientを作成する
func New(config Config, log *logger.Logger) *Client {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Default
	}
	return &Client{
		config:   config,
		log:      log,
		statuses: make(map[string]uint64),
	}
}

// RunRequests は count 件のリクエストを送り、全て終わってから結果を返す。
// ctx がキャンセルされると、未投入のリクエストは送らない
func (c *Client) RunRequests(ctx context.Context, count int) (Result, error) {
	pool := worker.New(c.config.NumWorkers, worker.WithLogger(c.log))
	start := time.Now()

	c.log.Info("", "Client started (workers: %d, requests: %d, target: %s)",
		c.config.NumWorkers, count, c.config.Addr)

	var submitErr error
	for range count {
		if ctx.Err() != nil {
			break
		}
		line := c.pickRequestLine()
		if err := pool.Execute(func() { c.doRequest(line) }); err != nil {
			submitErr = err
			break
		}
	}

	// 投入済みのリクエストは全て完了するまで待つ
	if err := pool.Close(); err != nil && submitErr == nil {
		submitErr = err
	}

	result := c.result(time.Since(start))
	c.log.Info("", "Client stopped (%d requests, %d failures)", result.Requests, result.Failures)
	return result, submitErr
}

// pickRequestLine は比率に従ってリクエスト行を選ぶ
func (c *Client) pickRequestLine() string {
	r := rand.Float64()
	switch {
	case r < c.config.SleepRatio:
		return "GET /sleep HTTP/1.1"
	case r < c.config.SleepRatio+c.config.MissRatio:
		return "GET /missing HTTP/1.1"
	default:
		return "GET / HTTP/1.1"
	}
}

// doRequest は1件のリクエストを送り、ステータス行とレイテンシを記録する
func (c *Client) doRequest(requestLine string) {
	start := time.Now()
	status, err := c.roundTrip(requestLine)
	latency := time.Since(start)

	c.requests.Add(1)
	if err != nil {
		c.failures.Add(1)
		c.log.Debug("", "%q failed: %v", requestLine, err)
		return
	}

	c.mu.Lock()
	c.statuses[status]++
	c.latencies = append(c.latencies, latency)
	c.mu.Unlock()
}

func (c *Client) roundTrip(requestLine string) (string, error) {
	conn, err := net.DialTimeout("tcp", c.config.Addr, c.config.DialTimeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.config.DialTimeout))
	if _, err := fmt.Fprintf(conn, "%s\r\nHost: %s\r\n\r\n", requestLine, c.config.Addr); err != nil {
		return "", err
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read status line: %w", err)
	}
	// 残りは読み捨てる
	_, _ = io.Copy(io.Discard, br)

	return strings.TrimRight(status, "\r\n"), nil
}

func (c *Client) result(elapsed time.Duration) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result{
		Requests:     c.requests.Load(),
		Failures:     c.failures.Load(),
		StatusCounts: make(map[string]uint64, len(c.statuses)),
		Elapsed:      elapsed,
	}
	for s, n := range c.statuses {
		res.StatusCounts[s] = n
	}

	if len(c.latencies) == 0 {
		return res
	}

	sorted := make([]time.Duration, len(c.latencies))
	copy(sorted, c.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var total time.Duration
	for _, l := range sorted {
		total += l
	}
	res.AverageLatency = total / time.Duration(len(sorted))

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	res.P99Latency = sorted[idx]

	return res
}
