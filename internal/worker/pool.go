package worker

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"webpool/internal/events"
	"webpool/internal/logger"
	"webpool/internal/queue"
)

// Job はワーカーが実行するジョブを表す
type Job func()

// Option はプールの設定を変更する
type Option func(*Pool)

// WithObserver はジョブとワーカーのライフサイクルを観測する Observer を設定する
func WithObserver(obs Observer) Option {
	return func(p *Pool) {
		if obs != nil {
			p.observer = obs
		}
	}
}

// WithEventBus はライフサイクルイベントの配信先を設定する
func WithEventBus(bus *events.Bus) Option {
	return func(p *Pool) {
		p.bus = bus
	}
}

// WithLogger はプールが使うロガーを設定する
func WithLogger(l *logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// Pool は固定数のワーカーゴルーチンを管理する
type Pool struct {
	mu      sync.RWMutex
	sender  *queue.Sender // ティアダウン時に取り出されて nil になる
	rx      *queue.Shared
	workers []*worker
	live    atomic.Int32

	log      *logger.Logger
	observer Observer
	bus      *events.Bus
}

// New は size 個のワーカーを持つプールを作成する。
// 全ワーカーが起動してから戻る。size が 0 以下の場合は panic する
func New(size int, opts ...Option) *Pool {
	if size <= 0 {
		panic(fmt.Sprintf("worker: pool size must be positive, got %d", size))
	}

	tx, rx := queue.New()
	p := &Pool{
		sender:   tx,
		rx:       queue.NewShared(rx),
		workers:  make([]*worker, 0, size),
		log:      logger.Default,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}

	var ready sync.WaitGroup
	ready.Add(size)
	for i := range size {
		p.workers = append(p.workers, newWorker(i, p.rx, p, &ready))
	}
	ready.Wait()

	p.log.Info("pool", "ThreadPool started with %d workers", size)
	return p
}

// Execute はジョブをキューに送信する。ワーカーの空きを待つことはない。
// ジョブがいつ実行されるかは保証されず、結果も返らない
func (p *Pool) Execute(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.sender == nil {
		return ErrPoolClosed
	}
	if err := p.sender.Send(queue.Job(job)); err != nil {
		return fmt.Errorf("%w: %w", ErrPoolClosed, err)
	}
	p.observer.JobSubmitted()
	return nil
}

// Close はプールを停止する。
// (1) 送信側を取り出して閉じ、(2) 生成順に全ワーカーの終了を待つ。
// キュー内の残りのジョブは全て実行されてから戻る。2回目以降は ErrPoolClosed
func (p *Pool) Close() error {
	p.mu.Lock()
	tx := p.sender
	p.sender = nil
	p.mu.Unlock()

	if tx == nil {
		return ErrPoolClosed
	}

	p.log.Info("pool", "ThreadPool dropping")
	p.bus.Publish(events.NewPoolClosingEvent(p.Live(), p.Pending()))
	_ = tx.Close()

	p.log.Info("pool", "Waiting for workers to finish")
	for _, w := range p.workers {
		p.log.Debug("pool", "Shutting down %s", w.name())
		w.join()
	}

	p.bus.Publish(events.NewPoolClosedEvent())
	p.log.Info("pool", "ThreadPool stopped")
	return nil
}

// Size はワーカー数（構築時の値）を返す
func (p *Pool) Size() int {
	return len(p.workers)
}

// Live はまだ終了していないワーカー数を返す
func (p *Pool) Live() int {
	return int(p.live.Load())
}

// Pending はキューに残っているジョブ数を返す
func (p *Pool) Pending() int {
	return p.rx.Len()
}

// Closed はティアダウンが開始済みかどうかを返す
func (p *Pool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sender == nil
}

// Workers は各ワーカーの状態を ID 順に返す
func (p *Pool) Workers() []WorkerInfo {
	infos := make([]WorkerInfo, 0, len(p.workers))
	for _, w := range p.workers {
		infos = append(infos, w.info())
	}
	return infos
}

// Faults はジョブの panic で終了したワーカーのエラーを ID 順に返す
func (p *Pool) Faults() []error {
	var faults []error
	for _, w := range p.workers {
		if f := w.fault.Load(); f != nil {
			faults = append(faults, f)
		}
	}
	return faults
}

func workerName(id int) string {
	return "worker-" + strconv.Itoa(id)
}
