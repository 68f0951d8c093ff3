package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/moonmind/moonmind/pkg/config"
	"github.com/moonmind/moonmind/pkg/log"
	"github.com/moonmind/moonmind/pkg/storage"
)

// Sweeper periodically normalizes expired leases so stalled jobs converge
// even when no worker is claiming. The claim path runs the same
// normalization inline; the sweeper only bounds how long an idle deployment
// can sit on an expired lease.
type Sweeper struct {
	store      storage.Store
	interval   time.Duration
	retryDelay time.Duration
	logger     zerolog.Logger
	stopCh     chan struct{}
}

// NewSweeper creates a lease sweeper from the configured cadence.
func NewSweeper(store storage.Store, cfg *config.Config) *Sweeper {
	return &Sweeper{
		store:      store,
		interval:   cfg.LeaseSweepInterval(),
		retryDelay: cfg.DefaultRetryDelay(),
		logger:     log.WithComponent("lease-sweeper"),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop stops the sweep loop.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep performs one normalization cycle.
func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	n, err := s.store.NormalizeExpiredLeases(ctx, s.retryDelay)
	if err != nil {
		s.logger.Error().Err(err).Msg("lease sweep failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("normalized", n).Msg("expired leases normalized")
	}
}
