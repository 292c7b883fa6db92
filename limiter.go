package nomadlabs

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiter counts failed sign-ins per client IP over a sliding window.
type LoginLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	max      int
	window   time.Duration
	now      func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewLoginLimiter allows max failures per window before blocking an IP.
func NewLoginLimiter(max int, window time.Duration) *LoginLimiter {
	l := &LoginLimiter{
		failures: make(map[string][]time.Time),
		max:      max,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Stop ends the background sweep.
func (l *LoginLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *LoginLimiter) sweep() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		l.mu.Lock()
		for ip := range l.failures {
			if len(l.recentLocked(ip)) == 0 {
				delete(l.failures, ip)
			}
		}
		l.mu.Unlock()
	}
}

// recentLocked trims ip's failures to the current window and returns them.
func (l *LoginLimiter) recentLocked(ip string) []time.Time {
	cutoff := l.now().Add(-l.window)
	hits := l.failures[ip]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]
	l.failures[ip] = hits
	return hits
}

// Allow is Check followed by Record.
func (l *LoginLimiter) Allow(ip string) bool {
	if !l.Check(ip) {
		return false
	}
	l.Record(ip)
	return true
}

// Check reports whether ip may attempt a sign-in. It records nothing.
func (l *LoginLimiter) Check(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recentLocked(ip)) < l.max
}

// Record counts a failed sign-in from ip.
func (l *LoginLimiter) Record(ip string) {
	l.mu.Lock()
	l.failures[ip] = append(l.failures[ip], l.now())
	l.mu.Unlock()
}

// Reset forgets ip's failures, after a successful sign-in.
func (l *LoginLimiter) Reset(ip string) {
	l.mu.Lock()
	delete(l.failures, ip)
	l.mu.Unlock()
}

// RetryAfter is how long until ip may try again; zero when not blocked.
func (l *LoginLimiter) RetryAfter(ip string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	hits := l.recentLocked(ip)
	if len(hits) < l.max {
		return 0
	}
	return hits[len(hits)-l.max].Add(l.window).Sub(l.now())
}

// UserThrottle is a token bucket per user id.
type UserThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewUserThrottle allows perMinute events per user with bursts of up to burst.
func NewUserThrottle(perMinute, burst int) *UserThrottle {
	return &UserThrottle{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
	}
}

// Allow reports whether userID may act now, consuming a token if so.
func (t *UserThrottle) Allow(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[userID]
	if !ok {
		if len(t.limiters) >= 10_000 {
			t.prune()
		}
		l = rate.NewLimiter(t.limit, t.burst)
		t.limiters[userID] = l
	}
	return l.Allow()
}

// prune drops limiters whose bucket has refilled, i.e. idle users.
func (t *UserThrottle) prune() {
	for id, l := range t.limiters {
		if l.Tokens() >= float64(t.burst) {
			delete(t.limiters, id)
		}
	}
}
