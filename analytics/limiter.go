package analytics

import (
	"sync"
	"time"
)

// window counts requests from one key since start.
type window struct {
	start time.Time
	count int
}

// rateLimiter admits at most max requests per key in each window, where a
// key's window opens with its first request.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	length  time.Duration
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

func newRateLimiter(max int, length time.Duration) *rateLimiter {
	rl := &rateLimiter{
		windows: make(map[string]*window),
		max:     max,
		length:  length,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (rl *rateLimiter) allow(key string) bool {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.length {
		rl.windows[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= rl.max {
		return false
	}
	w.count++
	return true
}

func (rl *rateLimiter) close() {
	rl.once.Do(func() { close(rl.stop) })
}

// sweep drops expired windows once per window length.
func (rl *rateLimiter) sweep() {
	ticker := time.NewTicker(rl.length)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.expire()
		}
	}
}

func (rl *rateLimiter) expire() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if now.Sub(w.start) >= rl.length {
			delete(rl.windows, key)
		}
	}
}
