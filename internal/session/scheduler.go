package session

import (
	"sync"
	"time"
)

// RealScheduler runs callbacks on wall-clock timers.
type RealScheduler struct{}

// NewRealScheduler creates a RealScheduler.
func NewRealScheduler() *RealScheduler { return &RealScheduler{} }

// Every calls fn once per interval on its own goroutine until cancelled.
func (RealScheduler) Every(interval time.Duration, fn func()) Cancel {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// After calls fn once after delay unless cancelled first.
func (RealScheduler) After(delay time.Duration, fn func()) Cancel {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}
