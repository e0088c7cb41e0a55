package worker

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"webpool/internal/events"
	"webpool/internal/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError)
}

// closeWithin は Close がタイムアウト内に戻ることを確認する
func closeWithin(t *testing.T, pool *Pool, d time.Duration) {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- pool.Close() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(d):
		t.Fatal("timeout waiting for pool to close")
	}
}

type recordingObserver struct {
	mu        sync.Mutex
	submitted int
	started   int
	finished  int
	panicked  int
	workersUp map[int]bool
	exited    map[int]error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		workersUp: make(map[int]bool),
		exited:    make(map[int]error),
	}
}

func (o *recordingObserver) JobSubmitted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submitted++
}

func (o *recordingObserver) JobStarted(int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) JobFinished(_ int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
	if err != nil {
		o.panicked++
	}
}

func (o *recordingObserver) WorkerStarted(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workersUp[id] = true
}

func (o *recordingObserver) WorkerExited(id int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exited[id] = err
}

func TestNewPoolStartsAllWorkers(t *testing.T) {
	for _, size := range []int{1, 2, 4, 16} {
		pool := New(size, WithLogger(quietLogger()))

		if pool.Size() != size {
			t.Errorf("size %d: expected Size() %d, got %d", size, size, pool.Size())
		}
		if pool.Live() != size {
			t.Errorf("size %d: expected %d live workers, got %d", size, size, pool.Live())
		}
		for i, info := range pool.Workers() {
			if info.ID != i {
				t.Errorf("size %d: expected worker id %d, got %d", size, i, info.ID)
			}
			if info.State != StateRunning {
				t.Errorf("size %d: worker %d expected Running, got %s", size, i, info.State)
			}
		}

		closeWithin(t, pool, time.Second)

		if pool.Live() != 0 {
			t.Errorf("size %d: expected 0 live workers after close, got %d", size, pool.Live())
		}
		for _, info := range pool.Workers() {
			if info.State != StateExited {
				t.Errorf("size %d: worker %d expected Exited, got %s", size, info.ID, info.State)
			}
		}
	}
}

func TestNewPoolInvalidSize(t *testing.T) {
	for _, size := range []int{0, -3} {
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("expected panic for size %d", size)
				}
			}()
			New(size, WithLogger(quietLogger()))
		}()
	}
}

func TestPoolSingleWorkerRunsInOrder(t *testing.T) {
	pool := New(1, WithLogger(quietLogger()))

	var mu sync.Mutex
	var log []int
	for i := range 3 {
		if err := pool.Execute(func() {
			mu.Lock()
			log = append(log, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}

	closeWithin(t, pool, time.Second)

	if len(log) != 3 || log[0] != 0 || log[1] != 1 || log[2] != 2 {
		t.Errorf("expected [0 1 2], got %v", log)
	}
}

func TestPoolCounter(t *testing.T) {
	pool := New(4, WithLogger(quietLogger()))

	var counter atomic.Int32
	for range 100 {
		if err := pool.Execute(func() { counter.Add(1) }); err != nil {
			t.Fatalf("execute: %v", err)
		}
	}

	closeWithin(t, pool, time.Second)

	if counter.Load() != 100 {
		t.Errorf("expected 100 jobs completed, got %d", counter.Load())
	}
}

func TestPoolRunsEachJobExactlyOnce(t *testing.T) {
	pool := New(8, WithLogger(quietLogger()))

	const numJobs = 2000
	var runs [numJobs]atomic.Int32
	var concurrent [numJobs]atomic.Int32
	var overlap atomic.Bool

	for i := range numJobs {
		_ = pool.Execute(func() {
			if concurrent[i].Add(1) > 1 {
				overlap.Store(true)
			}
			runs[i].Add(1)
			concurrent[i].Add(-1)
		})
	}

	closeWithin(t, pool, 5*time.Second)

	if overlap.Load() {
		t.Error("a job was executed by two workers at once")
	}
	for i := range numJobs {
		if n := runs[i].Load(); n != 1 {
			t.Fatalf("job %d ran %d times", i, n)
		}
	}
}

func TestPoolConcurrentSubmit(t *testing.T) {
	pool := New(4, WithLogger(quietLogger()))

	var counter atomic.Int32
	const numGoroutines = 10
	const jobsPerGoroutine = 100

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobsPerGoroutine {
				_ = pool.Execute(func() { counter.Add(1) })
			}
		}()
	}
	wg.Wait()

	closeWithin(t, pool, 5*time.Second)

	expected := int32(numGoroutines * jobsPerGoroutine)
	if counter.Load() != expected {
		t.Errorf("expected %d jobs completed, got %d", expected, counter.Load())
	}
}

func TestPoolCloseWaitsForQueuedJobs(t *testing.T) {
	pool := New(2, WithLogger(quietLogger()))

	blocker := make(chan struct{})
	var counter atomic.Int32

	for range 2 {
		_ = pool.Execute(func() {
			<-blocker
			counter.Add(1)
		})
	}
	for range 10 {
		_ = pool.Execute(func() { counter.Add(1) })
	}

	closed := make(chan struct{})
	go func() {
		_ = pool.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while jobs were still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(blocker)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pool to close")
	}

	if counter.Load() != 12 {
		t.Errorf("expected 12 jobs completed, got %d", counter.Load())
	}
}

func TestPoolExecuteAfterClose(t *testing.T) {
	pool := New(2, WithLogger(quietLogger()))
	closeWithin(t, pool, time.Second)

	if !pool.Closed() {
		t.Error("expected Closed() to be true")
	}
	if err := pool.Execute(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
	if err := pool.Close(); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed on second close, got %v", err)
	}
}

func TestPoolNilJob(t *testing.T) {
	pool := New(1, WithLogger(quietLogger()))
	defer pool.Close()

	if err := pool.Execute(nil); !errors.Is(err, ErrNilJob) {
		t.Errorf("expected ErrNilJob, got %v", err)
	}
}

func TestPoolPanickingJobKillsOnlyItsWorker(t *testing.T) {
	pool := New(3, WithLogger(quietLogger()))

	faulted := make(chan struct{})
	_ = pool.Execute(func() {
		defer close(faulted)
		panic("malformed job")
	})

	select {
	case <-faulted:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for panicking job")
	}

	var counter atomic.Int32
	for range 50 {
		_ = pool.Execute(func() { counter.Add(1) })
	}

	closeWithin(t, pool, time.Second)

	if counter.Load() != 50 {
		t.Errorf("expected 50 jobs completed by remaining workers, got %d", counter.Load())
	}

	faults := pool.Faults()
	if len(faults) != 1 {
		t.Fatalf("expected 1 fault, got %d", len(faults))
	}

	var perr *JobPanicError
	if !errors.As(faults[0], &perr) {
		t.Fatalf("expected *JobPanicError, got %T", faults[0])
	}
	if perr.Value != "malformed job" {
		t.Errorf("expected panic value, got %v", perr.Value)
	}
	if perr.Stack == "" {
		t.Error("expected a stack trace")
	}

	exitedWithFault := 0
	for _, info := range pool.Workers() {
		if info.Err != nil {
			exitedWithFault++
			if info.ID != perr.WorkerID {
				t.Errorf("fault reported on worker %d, panic was on %d", info.ID, perr.WorkerID)
			}
		}
	}
	if exitedWithFault != 1 {
		t.Errorf("expected 1 faulted worker, got %d", exitedWithFault)
	}
}

func TestPoolFaultShrinksCapacity(t *testing.T) {
	pool := New(2, WithLogger(quietLogger()))

	faulted := make(chan struct{})
	_ = pool.Execute(func() {
		defer close(faulted)
		panic("boom")
	})
	<-faulted

	deadline := time.Now().Add(time.Second)
	for pool.Live() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if pool.Live() != 1 {
		t.Errorf("expected 1 live worker after fault, got %d", pool.Live())
	}

	closeWithin(t, pool, time.Second)
}

func TestPoolAllWorkersFaulted(t *testing.T) {
	pool := New(1, WithLogger(quietLogger()))

	var ran atomic.Bool
	_ = pool.Execute(func() { panic("first") })
	_ = pool.Execute(func() { ran.Store(true) })

	closeWithin(t, pool, time.Second)

	if ran.Load() {
		t.Error("job ran after the only worker faulted")
	}
	if pool.Live() != 0 {
		t.Errorf("expected 0 live workers, got %d", pool.Live())
	}
}

func TestJobPanicErrorUnwrap(t *testing.T) {
	sentinel := errors.New("disk on fire")
	pool := New(1, WithLogger(quietLogger()))

	_ = pool.Execute(func() { panic(sentinel) })
	closeWithin(t, pool, time.Second)

	faults := pool.Faults()
	if len(faults) != 1 {
		t.Fatalf("expected 1 fault, got %d", len(faults))
	}
	if !errors.Is(faults[0], sentinel) {
		t.Errorf("expected fault to wrap sentinel, got %v", faults[0])
	}
}

func TestPoolZeroJobs(t *testing.T) {
	obs := newRecordingObserver()
	pool := New(3, WithLogger(quietLogger()), WithObserver(obs))

	closeWithin(t, pool, time.Second)

	obs.mu.Lock()
	defer obs.mu.Unlock()

	if obs.started != 0 || obs.submitted != 0 {
		t.Errorf("expected no job activity, got submitted=%d started=%d", obs.submitted, obs.started)
	}
	if len(obs.workersUp) != 3 || len(obs.exited) != 3 {
		t.Errorf("expected 3 workers up and exited, got %d/%d", len(obs.workersUp), len(obs.exited))
	}
	for id, err := range obs.exited {
		if err != nil {
			t.Errorf("worker %d exited with %v", id, err)
		}
	}
}

func TestPoolObserverCounts(t *testing.T) {
	obs := newRecordingObserver()
	pool := New(2, WithLogger(quietLogger()), WithObserver(obs))

	for range 20 {
		_ = pool.Execute(func() {})
	}
	_ = pool.Execute(func() { panic("bad") })

	closeWithin(t, pool, time.Second)

	obs.mu.Lock()
	defer obs.mu.Unlock()

	if obs.submitted != 21 {
		t.Errorf("expected 21 submitted, got %d", obs.submitted)
	}
	if obs.started != obs.finished {
		t.Errorf("started %d != finished %d", obs.started, obs.finished)
	}
	if obs.panicked != 1 {
		t.Errorf("expected 1 panicked job, got %d", obs.panicked)
	}
}

func TestPoolPublishesLifecycleEvents(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe()

	pool := New(2, WithLogger(quietLogger()), WithEventBus(bus))
	closeWithin(t, pool, time.Second)

	counts := make(map[events.EventType]int)
	for {
		select {
		case ev := <-ch:
			counts[ev.Type]++
			continue
		default:
		}
		break
	}

	if counts[events.EventWorkerStarted] != 2 {
		t.Errorf("expected 2 worker_started, got %d", counts[events.EventWorkerStarted])
	}
	if counts[events.EventWorkerExited] != 2 {
		t.Errorf("expected 2 worker_exited, got %d", counts[events.EventWorkerExited])
	}
	if counts[events.EventPoolClosing] != 1 || counts[events.EventPoolClosed] != 1 {
		t.Errorf("expected one closing and one closed event, got %v", counts)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateRunning, "Running"},
		{StateExited, "Exited"},
		{State(9), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.expected)
		}
	}
}
