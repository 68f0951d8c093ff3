package health

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds one check when the caller configures nothing.
const DefaultTimeout = 5 * time.Second

// Check probes a single dependency. A nil return means healthy. Checks
// must honor ctx; the runner cancels it at the per-check timeout.
type Check func(ctx context.Context) error

// Result is the outcome of one named check.
type Result struct {
	Name       string    `json:"name"`
	Healthy    bool      `json:"healthy"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checkedAt"`
	DurationMS int64     `json:"durationMs"`
}

// Report aggregates every registered check. Healthy is the conjunction;
// one failing dependency fails readiness.
type Report struct {
	Healthy bool     `json:"healthy"`
	Checks  []Result `json:"checks"`
}

// Checker runs named readiness checks under a shared per-check timeout.
// Reports list checks in registration order.
type Checker struct {
	timeout time.Duration

	mu     sync.RWMutex
	names  []string
	checks map[string]Check
}

// NewChecker returns an empty checker. timeout <= 0 selects DefaultTimeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		timeout: timeout,
		checks:  make(map[string]Check),
	}
}

// Register adds a named check. Re-registering a name replaces the check
// but keeps its original report position.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.checks[name]; !ok {
		c.names = append(c.names, name)
	}
	c.checks[name] = check
}

// Run executes all checks sequentially and returns the aggregate report.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := append([]string(nil), c.names...)
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	report := Report{Healthy: true, Checks: make([]Result, 0, len(names))}
	for _, name := range names {
		result := c.runOne(ctx, name, checks[name])
		if !result.Healthy {
			report.Healthy = false
		}
		report.Checks = append(report.Checks, result)
	}
	return report
}

func (c *Checker) runOne(ctx context.Context, name string, check Check) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	result := Result{
		Name:       name,
		Healthy:    err == nil,
		CheckedAt:  start.UTC(),
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}
