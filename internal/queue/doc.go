// Package queue provides an unbounded job channel with closeable ends.
//
// New returns a connected Sender/Receiver pair. Any number of goroutines may
// send through a Sender (or its clones) without extra locking. Receive is
// blocking and reports ErrDisconnected once every Sender handle has been
// closed and the buffered jobs have been drained.
//
// # Basic Usage
//
//	tx, rx := queue.New()
//	shared := queue.NewShared(rx)
//
//	go func() {
//	    for {
//	        job, err := shared.Recv()
//	        if err != nil {
//	            return // queue.ErrDisconnected
//	        }
//	        job()
//	    }
//	}()
//
//	_ = tx.Send(func() { fmt.Println("hello") })
//	_ = tx.Close()
//
// # Sharing the Receiver
//
// A Receiver is meant for one consumer. Shared wraps it in a mutex so that a
// group of consumers can take turns: exactly one of them is inside Recv at a
// time, so each job is handed to exactly one consumer.
package queue
