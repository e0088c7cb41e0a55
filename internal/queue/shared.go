package queue

import "sync"

// Shared は複数のワーカーで共有する受信側。
// 取り出し操作はミューテックスで直列化される
type Shared struct {
	mu sync.Mutex
	rx *Receiver
}

// NewShared は Receiver を共有ハンドルで包む
func NewShared(rx *Receiver) *Shared {
	return &Shared{rx: rx}
}

// Recv は排他的に受信する。ロックは受信が終わるまで保持される
func (s *Shared) Recv() (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rx.Recv()
}

// Len はキューに残っているジョブ数を返す
func (s *Shared) Len() int {
	return s.rx.Len()
}
