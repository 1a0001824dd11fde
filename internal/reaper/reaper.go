// Package reaper runs the periodic expiry sweep. The sweep itself lives in
// the service layer; this package only decides when it runs.
package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
)

// Sweeper is the one-shot sweep the reaper schedules. The same entry point
// serves the manual admin trigger.
type Sweeper interface {
	RunExpirySweep(ctx context.Context) (*model.SweepResult, error)
}

// Reaper invokes the expiry sweep on a fixed interval until its context is
// cancelled.
type Reaper struct {
	sweeper  Sweeper
	interval time.Duration

	mu        sync.Mutex
	lastSweep time.Time
}

// New creates a Reaper sweeping at the given interval.
func New(sweeper Sweeper, interval time.Duration) *Reaper {
	return &Reaper{sweeper: sweeper, interval: interval}
}

// Start launches the sweep loop in a background goroutine. The first sweep
// runs immediately so a restart never extends the reclamation gap.
func (r *Reaper) Start(ctx context.Context) {
	go r.run(ctx)
	log.Info().Dur("interval", r.interval).Msg("expiry reaper started")
}

func (r *Reaper) run(ctx context.Context) {
	for {
		r.sweepOnce(ctx)

		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			log.Info().Msg("expiry reaper stopped")
			return
		case <-timer.C:
		}
	}
}

func (r *Reaper) sweepOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.sweeper.RunExpirySweep(ctx); err != nil {
		// Best effort: redemption re-checks expiry on its own, so a failed
		// sweep only delays storage reclamation.
		log.Warn().Err(err).Msg("expiry sweep failed")
		return
	}
	r.mu.Lock()
	r.lastSweep = time.Now()
	r.mu.Unlock()
}

// LastSweep reports when the most recent sweep completed, false if none has.
func (r *Reaper) LastSweep() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSweep, !r.lastSweep.IsZero()
}
