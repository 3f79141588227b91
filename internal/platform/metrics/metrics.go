package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector keeps process-local counters for requests, logins and guard
// decisions.
type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64
	loginSuccess    uint64
	loginFailure    uint64
	sessionsSwept   uint64

	mu     sync.Mutex
	guards map[string]uint64
}

func New() *Collector {
	return &Collector{guards: map[string]uint64{}}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

func (c *Collector) RecordLogin(ok bool) {
	if ok {
		atomic.AddUint64(&c.loginSuccess, 1)
		return
	}
	atomic.AddUint64(&c.loginFailure, 1)
}

// RecordGuard counts one guard decision by outcome name.
func (c *Collector) RecordGuard(outcome string) {
	c.mu.Lock()
	c.guards[outcome]++
	c.mu.Unlock()
}

func (c *Collector) RecordSwept(n int) {
	if n > 0 {
		atomic.AddUint64(&c.sessionsSwept, uint64(n))
	}
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}

	c.mu.Lock()
	guards := make(map[string]uint64, len(c.guards))
	for outcome, n := range c.guards {
		guards[outcome] = n
	}
	c.mu.Unlock()

	return map[string]any{
		"requestsTotal":      total,
		"errorsTotal":        atomic.LoadUint64(&c.errorRequests),
		"rateLimitedTotal":   atomic.LoadUint64(&c.rateLimited),
		"avgDurationMs":      avg,
		"totalDurationMs":    totalMs,
		"loginSuccessTotal":  atomic.LoadUint64(&c.loginSuccess),
		"loginFailureTotal":  atomic.LoadUint64(&c.loginFailure),
		"sessionsSweptTotal": atomic.LoadUint64(&c.sessionsSwept),
		"guardDecisions":     guards,
	}
}
