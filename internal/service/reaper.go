package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dmorelli/tutoring-slots/internal/repository"
)

// defaultSweepInterval bounds how long an expired hold can linger
// before reclamation.  Expiry is advisory data, not an active timer:
// nothing fires at the expiry instant, the next sweep simply observes
// that it has passed.
const defaultSweepInterval = time.Minute

// Reaper periodically reclaims expired holds.  Each sweep is one bulk
// conditional UPDATE and carries no cross-sweep state, so a failed
// sweep is just logged and retried on the next tick.
type Reaper struct {
	reservations *repository.ReservationRepo
	interval     time.Duration
	logger       *zap.Logger
	stopChan     chan struct{}
}

// NewReaper constructs a Reaper.  A non-positive interval falls back
// to one minute.
func NewReaper(reservations *repository.ReservationRepo, interval time.Duration, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Reaper{
		reservations: reservations,
		interval:     interval,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine.  The loop ends when
// Stop is called or the context is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	r.logger.Info("starting expiry reaper", zap.Duration("interval", r.interval))
	go r.run(ctx)
}

// Stop terminates the sweep loop.
func (r *Reaper) Stop() {
	close(r.stopChan)
}

func (r *Reaper) run(ctx context.Context) {
	// First sweep immediately so a restart does not wait a full
	// interval to reclaim holds that expired while the process was down.
	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep(ctx)
		case <-r.stopChan:
			r.logger.Info("expiry reaper stopped")
			return
		case <-ctx.Done():
			r.logger.Info("expiry reaper cancelled")
			return
		}
	}
}

// Sweep cancels every hold whose expiry has passed and returns the
// number of rows reclaimed.  Exported so operational tooling can force
// a sweep outside the timer.
func (r *Reaper) Sweep(ctx context.Context) int64 {
	n, err := r.reservations.SweepExpired(ctx)
	if err != nil {
		r.logger.Error("sweep failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		r.logger.Info("expired holds reclaimed", zap.Int64("count", n))
	}
	return n
}
