package worker

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"webpool/internal/events"
	"webpool/internal/queue"
)

// State はワーカーの状態を表す
type State int32

const (
	// StateRunning は受信待ちまたはジョブ実行中
	StateRunning State = iota
	// StateExited はゴルーチンが終了済み（終端状態）
	StateExited
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateExited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// WorkerInfo はワーカーの状態スナップショット
type WorkerInfo struct {
	ID      int
	State   State
	JobsRun int64
	Err     error
}

// worker は1つのゴルーチンとその識別子
// キュー自体は所有せず、共有受信ハンドルへの参照だけを持つ
type worker struct {
	id    int
	rx    *queue.Shared
	done  chan struct{}
	state atomic.Int32
	jobs  atomic.Int64
	fault atomic.Pointer[JobPanicError]
}

// newWorker はワーカーを作成し、すぐにゴルーチンを起動する
func newWorker(id int, rx *queue.Shared, p *Pool, ready *sync.WaitGroup) *worker {
	w := &worker{
		id:   id,
		rx:   rx,
		done: make(chan struct{}),
	}
	go w.run(p, ready)
	return w
}

// run はワーカーのメインループ
func (w *worker) run(p *Pool, ready *sync.WaitGroup) {
	defer w.exit(p)

	p.live.Add(1)
	p.observer.WorkerStarted(w.id)
	p.bus.Publish(events.NewWorkerStartedEvent(w.id))
	ready.Done()

	for {
		job, err := w.rx.Recv()
		if err != nil {
			// 送信側が閉じられた: 正常終了
			p.log.Debug(w.name(), "Disconnected; shutting down")
			return
		}

		p.log.Debug(w.name(), "Got a job; executing")
		if perr := w.execute(job, p.observer); perr != nil {
			w.fault.Store(perr)
			p.log.Error(w.name(), "%v; worker will not be replaced\n%s", perr, perr.Stack)
			return
		}
	}
}

// execute はジョブを同期的に実行する
// panic はここで捕捉されるが、ワーカーはそのまま終了する
func (w *worker) execute(job queue.Job, obs Observer) (perr *JobPanicError) {
	start := time.Now()
	obs.JobStarted(w.id)

	defer func() {
		if r := recover(); r != nil {
			perr = &JobPanicError{
				WorkerID: w.id,
				Value:    r,
				Stack:    string(debug.Stack()),
			}
		}
		w.jobs.Add(1)

		var err error
		if perr != nil {
			err = perr
		}
		obs.JobFinished(w.id, time.Since(start), err)
	}()

	job()
	return nil
}

// exit は終了時の後処理。done を閉じるのは最後
func (w *worker) exit(p *Pool) {
	w.state.Store(int32(StateExited))
	p.live.Add(-1)

	var err error
	if f := w.fault.Load(); f != nil {
		err = f
		p.bus.Publish(events.NewWorkerFaultedEvent(w.id, int(w.jobs.Load()), f))
	} else {
		p.bus.Publish(events.NewWorkerExitedEvent(w.id, int(w.jobs.Load())))
	}
	p.observer.WorkerExited(w.id, err)

	close(w.done)
}

// join はゴルーチンの終了までブロックする
func (w *worker) join() {
	<-w.done
}

func (w *worker) info() WorkerInfo {
	info := WorkerInfo{
		ID:      w.id,
		State:   State(w.state.Load()),
		JobsRun: w.jobs.Load(),
	}
	if f := w.fault.Load(); f != nil {
		info.Err = f
	}
	return info
}

func (w *worker) name() string {
	return workerName(w.id)
}
