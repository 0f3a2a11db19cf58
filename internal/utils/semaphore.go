package utils

import "context"

// Semaphore は並列処理用のセマフォ
type Semaphore struct {
	sem chan struct{}
}

// NewSemaphore は新しいセマフォを作成
func NewSemaphore(max int) *Semaphore {
	if max < 1 {
		max = 1
	}
	return &Semaphore{
		sem: make(chan struct{}, max),
	}
}

// Acquire はセマフォを取得。ctx がキャンセルされた場合はエラーを返す。
func (s *Semaphore) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release はセマフォを解放
func (s *Semaphore) Release() {
	<-s.sem
}
