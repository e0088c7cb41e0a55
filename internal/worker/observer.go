package worker

import "time"

// Observer はプールのライフサイクルを観測する。
// メソッドはワーカーゴルーチンや投入側から並行に呼ばれる
type Observer interface {
	JobSubmitted()
	JobStarted(workerID int)
	// JobFinished の err はジョブが panic した場合のみ非 nil
	JobFinished(workerID int, d time.Duration, err error)
	WorkerStarted(workerID int)
	// WorkerExited の err はジョブの panic で終了した場合のみ非 nil
	WorkerExited(workerID int, err error)
}

type nopObserver struct{}

func (nopObserver) JobSubmitted() {}
func (nopObserver) JobStarted(int) {}
func (nopObserver) JobFinished(int, time.Duration, error) {}
func (nopObserver) WorkerStarted(int) {}
func (nopObserver) WorkerExited(int, error) {}
