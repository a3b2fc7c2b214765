package session

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically evicts idle sessions from a Store. The store holds
// no timer of its own, so ownership of the schedule lives here.
type Sweeper struct {
	store    *Store
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSweeper creates a sweeper ticking at the given interval.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine.
func (sw *Sweeper) Start() {
	go sw.run()
}

func (sw *Sweeper) run() {
	defer close(sw.doneCh)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sw.stopCh:
			return
		case <-ticker.C:
			if removed := sw.store.SweepExpired(sw.store.cfg.Clock()); removed > 0 {
				log.Info().Int("removed", removed).Msg("Swept expired sessions")
			}
		}
	}
}

// Stop terminates the loop and waits for it to exit. Call at most once.
func (sw *Sweeper) Stop() {
	close(sw.stopCh)
	<-sw.doneCh
}
