// Package worker provides a fixed-size goroutine pool for fire-and-forget jobs.
//
// A Pool owns N workers and the sending end of an unbounded job queue
// (package queue). Every worker loops: take the shared receiver's lock,
// block in Recv, release the lock, run the job. Each job is delivered to
// exactly one worker.
//
// # Basic Usage
//
//	pool := worker.New(4) // panics if size <= 0
//	defer pool.Close()
//
//	for i := 0; i < 100; i++ {
//	    _ = pool.Execute(func() {
//	        // do work
//	    })
//	}
//
// Execute never waits for a free worker and returns no result; use your own
// channel if the caller needs one.
//
// # Shutdown
//
// Close first closes the queue's sending side, then joins every worker in
// construction order. Jobs already queued still run. Once Close has started,
// Execute returns ErrPoolClosed; a second Close returns ErrPoolClosed too.
//
// # Faulting Jobs
//
// A job that panics takes its worker down with it: the panic is captured as
// a *JobPanicError (see Pool.Faults), logged, and the worker exits. It is not
// restarted, so the pool runs one worker short from then on. If every worker
// has faulted, queued jobs are never run and Close still returns.
package worker
