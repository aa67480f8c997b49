package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type memEntry struct {
	bucket       *rate.Limiter
	blockedUntil time.Time
	lastSeen     time.Time
}

// Memory keeps one token bucket per key. Each failure takes a token; running out
// places a block for BlockFor. Tokens refill at MaxFails per Window.
type Memory struct {
	cfg Settings
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*memEntry
}

// NewMemory constructs an in-process limiter.
func NewMemory(cfg Settings) *Memory {
	return &Memory{cfg: cfg, now: time.Now, entries: map[string]*memEntry{}}
}

func mapKey(k Key) string { return k.Username + "\x00" + string(k.ClientHash) }

// Allow reports whether login is currently allowed and a retry-after duration.
func (m *Memory) Allow(_ context.Context, k Key) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[mapKey(k)]
	if !ok {
		return true, 0, nil
	}
	now := m.now()
	if e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success forgets the key.
func (m *Memory) Success(_ context.Context, k Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, mapKey(k))
	return nil
}

// Failure records a failed attempt and blocks once the bucket is empty.
func (m *Memory) Failure(_ context.Context, k Key) (bool, time.Duration, error) {
	if m.cfg.MaxFails <= 0 {
		return false, 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	key := mapKey(k)
	e, ok := m.entries[key]
	if !ok {
		e = &memEntry{bucket: rate.NewLimiter(m.refill(), m.cfg.MaxFails)}
		m.entries[key] = e
	}
	e.lastSeen = now
	e.bucket.AllowN(now, 1)
	if e.bucket.TokensAt(now) < 1 {
		e.blockedUntil = now.Add(m.cfg.BlockFor)
		return true, m.cfg.BlockFor, nil
	}
	return false, 0, nil
}

func (m *Memory) refill() rate.Limit {
	if m.cfg.Window <= 0 {
		return rate.Inf
	}
	return rate.Every(m.cfg.Window / time.Duration(m.cfg.MaxFails))
}

// Sweep drops keys that are neither blocked nor seen within the window.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for key, e := range m.entries {
		if !e.blockedUntil.After(now) && now.Sub(e.lastSeen) > m.cfg.Window {
			delete(m.entries, key)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
