package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed はティアダウン済みのプールに対する操作を示す
	ErrPoolClosed = errors.New("worker: pool is closed")
	// ErrNilJob は nil のジョブが投入されたことを示す
	ErrNilJob = errors.New("worker: nil job")
)

// JobPanicError はジョブ内で発生した panic によりワーカーが終了したことを表す
type JobPanicError struct {
	WorkerID int
	Value    any
	Stack    string
}

func (e *JobPanicError) Error() string {
	return fmt.Sprintf("worker %d: job panicked: %v", e.WorkerID, e.Value)
}

// Unwrap は panic の値が error だった場合にそれを返す
func (e *JobPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
