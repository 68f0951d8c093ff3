package metrics

import (
	"context"
	"time"
)

// JobCounts maps job type to per-status counts
type JobCounts map[string]map[string]int

// CountSource supplies current queue depth per type and status
type CountSource interface {
	CountJobsByStatus(ctx context.Context) (JobCounts, error)
}

// Collector periodically refreshes queue depth gauges from the store
type Collector struct {
	source   CountSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source CountSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := c.source.CountJobsByStatus(ctx)
	if err != nil {
		return
	}

	// Reset so types that drained to zero stop reporting stale depth
	JobsQueued.Reset()
	JobsRunning.Reset()

	for jobType, statuses := range counts {
		for status, count := range statuses {
			switch status {
			case "queued":
				JobsQueued.WithLabelValues(jobType).Set(float64(count))
			case "running":
				JobsRunning.WithLabelValues(jobType).Set(float64(count))
			}
		}
	}
}
