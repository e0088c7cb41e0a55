package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"webpool/internal/worker"
)

var _ worker.Observer = (*Metrics)(nil)

// Config はメトリクスの設定
type Config struct {
	Namespace         string // Prometheus のメトリクス名プレフィックス
	MaxLatencySamples int    // P99 計算に使うサンプル数の上限
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Namespace:         "webpool",
		MaxLatencySamples: 1000,
	}
}

// Metrics はワーカープールのメトリクスを収集する。worker.Observer を実装する
type Metrics struct {
	submitted   atomic.Uint64
	completed   atomic.Uint64
	panicked    atomic.Uint64
	running     atomic.Int64
	liveWorkers atomic.Int64
	totalNs     atomic.Uint64

	mu                sync.RWMutex
	startTime         time.Time
	latencies         []time.Duration
	maxLatencySamples int

	promSubmitted prometheus.Counter
	promCompleted prometheus.Counter
	promPanicked  prometheus.Counter
	promRunning   prometheus.Gauge
	promWorkers   prometheus.Gauge
	promDuration  prometheus.Histogram
}

// New は独自のレジストリを持つメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(prometheus.NewRegistry(), DefaultConfig())
}

// NewWithConfig は指定した Registerer にコレクタを登録してメトリクスを作成する
func NewWithConfig(registerer prometheus.Registerer, config Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	if config.Namespace == "" {
		config.Namespace = "webpool"
	}
	if config.MaxLatencySamples <= 0 {
		config.MaxLatencySamples = 1000
	}

	factory := promauto.With(registerer)
	return &Metrics{
		startTime:         time.Now(),
		latencies:         make([]time.Duration, 0, config.MaxLatencySamples),
		maxLatencySamples: config.MaxLatencySamples,

		promSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs accepted by the pool",
		}),
		promCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that ran to completion",
		}),
		promPanicked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "jobs_panicked_total",
			Help:      "Total number of jobs that panicked and took their worker down",
		}),
		promRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "jobs_running",
			Help:      "Number of jobs currently executing",
		}),
		promWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "workers_live",
			Help:      "Number of worker goroutines that have not exited",
		}),
		promDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "job_duration_seconds",
			Help:      "Job execution time in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 9), // 0.5ms to ~33s
		}),
	}
}

// JobSubmitted はジョブの投入を記録する
func (m *Metrics) JobSubmitted() {
	m.submitted.Add(1)
	m.promSubmitted.Inc()
}

// JobStarted はジョブの実行開始を記録する
func (m *Metrics) JobStarted(_ int) {
	m.running.Add(1)
	m.promRunning.Inc()
}

// JobFinished はジョブの終了を記録する
func (m *Metrics) JobFinished(_ int, d time.Duration, err error) {
	m.running.Add(-1)
	m.promRunning.Dec()
	m.promDuration.Observe(d.Seconds())
	m.totalNs.Add(uint64(d.Nanoseconds()))

	if err != nil {
		m.panicked.Add(1)
		m.promPanicked.Inc()
		return
	}

	m.completed.Add(1)
	m.promCompleted.Inc()

	m.mu.Lock()
	if len(m.latencies) < m.maxLatencySamples {
		m.latencies = append(m.latencies, d)
	}
	m.mu.Unlock()
}

// WorkerStarted はワーカーの起動を記録する
func (m *Metrics) WorkerStarted(_ int) {
	m.liveWorkers.Add(1)
	m.promWorkers.Inc()
}

// WorkerExited はワーカーの終了を記録する
func (m *Metrics) WorkerExited(_ int, _ error) {
	m.liveWorkers.Add(-1)
	m.promWorkers.Dec()
}

// Submitted は投入されたジョブ数を返す
func (m *Metrics) Submitted() uint64 {
	return m.submitted.Load()
}

// Completed は正常終了したジョブ数を返す
func (m *Metrics) Completed() uint64 {
	return m.completed.Load()
}

// Panicked は panic したジョブ数を返す
func (m *Metrics) Panicked() uint64 {
	return m.panicked.Load()
}

// AverageDuration は平均実行時間を返す
func (m *Metrics) AverageDuration() time.Duration {
	total := m.completed.Load() + m.panicked.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalNs.Load() / total)
}

// P99Duration はP99実行時間を返す（サンプルベース）
func (m *Metrics) P99Duration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	Submitted       uint64        `json:"submitted"`
	Completed       uint64        `json:"completed"`
	Panicked        uint64        `json:"panicked"`
	Running         int64         `json:"running"`
	LiveWorkers     int64         `json:"live_workers"`
	AverageDuration time.Duration `json:"average_duration_ns"`
	P99Duration     time.Duration `json:"p99_duration_ns"`
	Elapsed         time.Duration `json:"elapsed_ns"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Submitted:       m.Submitted(),
		Completed:       m.Completed(),
		Panicked:        m.Panicked(),
		Running:         m.running.Load(),
		LiveWorkers:     m.liveWorkers.Load(),
		AverageDuration: m.AverageDuration(),
		P99Duration:     m.P99Duration(),
		Elapsed:         time.Since(m.startTime),
	}
}
