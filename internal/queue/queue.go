package queue

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Job はキューで運ばれる一度きりの処理
type Job func()

var (
	// ErrDisconnected は相手側の端点がすべて閉じられたことを示す
	ErrDisconnected = errors.New("queue: disconnected")
	// ErrSenderClosed は閉じ済みの Sender で送信しようとしたことを示す
	ErrSenderClosed = errors.New("queue: sender already closed")
	// ErrEmpty は TryRecv 時にジョブがないことを示す
	ErrEmpty = errors.New("queue: empty")
)

// channel は Sender と Receiver が共有する内部状態
type channel struct {
	mu         sync.Mutex
	cond       *sync.Cond
	items      []Job
	senders    int
	recvClosed bool
}

// Sender はキューの送信側ハンドル
type Sender struct {
	ch     *channel
	closed atomic.Bool
}

// Receiver はキューの受信側ハンドル
type Receiver struct {
	ch *channel
}

// New は接続済みの Sender と Receiver を作成する
func New() (*Sender, *Receiver) {
	ch := &channel{senders: 1}
	ch.cond = sync.NewCond(&ch.mu)
	return &Sender{ch: ch}, &Receiver{ch: ch}
}

// Send はジョブをキューに追加する。ワーカーの空きを待つことはない
func (s *Sender) Send(job Job) error {
	if s.closed.Load() {
		return ErrSenderClosed
	}

	c := s.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recvClosed {
		return ErrDisconnected
	}
	c.items = append(c.items, job)
	c.cond.Signal()
	return nil
}

// Clone は同じキューに繋がる新しい Sender を返す
func (s *Sender) Clone() (*Sender, error) {
	if s.closed.Load() {
		return nil, ErrSenderClosed
	}

	c := s.ch
	c.mu.Lock()
	c.senders++
	c.mu.Unlock()

	return &Sender{ch: c}, nil
}

// Close はこのハンドルを閉じる。最後の Sender が閉じられると受信側は切断を観測する
func (s *Sender) Close() error {
	if s.closed.Swap(true) {
		return ErrSenderClosed
	}

	c := s.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	c.senders--
	if c.senders == 0 {
		c.cond.Broadcast()
	}
	return nil
}

// Recv はジョブが届くまでブロックする。
// 送信側が全て閉じられ、キューが空になると ErrDisconnected を返す
func (r *Receiver) Recv() (Job, error) {
	c := r.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.items) == 0 && c.senders > 0 && !c.recvClosed {
		c.cond.Wait()
	}
	if len(c.items) == 0 || c.recvClosed {
		return nil, ErrDisconnected
	}
	return c.pop(), nil
}

// TryRecv はブロックせずにジョブを取り出す
func (r *Receiver) TryRecv() (Job, error) {
	c := r.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recvClosed {
		return nil, ErrDisconnected
	}
	if len(c.items) == 0 {
		if c.senders == 0 {
			return nil, ErrDisconnected
		}
		return nil, ErrEmpty
	}
	return c.pop(), nil
}

// Close は受信側を破棄する。未処理のジョブは捨てられる
func (r *Receiver) Close() {
	c := r.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recvClosed = true
	c.items = nil
	c.cond.Broadcast()
}

// Len は現在キューに積まれているジョブ数を返す
func (r *Receiver) Len() int {
	c := r.ch
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// pop は先頭のジョブを取り出す。c.mu を保持した状態で呼ぶこと
func (c *channel) pop() Job {
	job := c.items[0]
	c.items[0] = nil
	c.items = c.items[1:]
	return job
}
