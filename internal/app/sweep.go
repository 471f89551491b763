package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"voice_review/internal/adapters/observability"
	"voice_review/internal/domain"
)

// RunSweeper calls Sweep every interval until ctx is done or the controller closes.
func (c *Controller) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-t.C:
			n := c.Sweep(ctx)
			if n > 0 {
				log.Info().Int("reclaimed", n).Msg("sweep finished")
			}
		}
	}
}

// Sweep reclaims sessions idle longer than the session timeout. Sessions
// that named a venue are finalized as if approved; the rest are discarded.
// Returns how many sessions were reclaimed.
func (c *Controller) Sweep(ctx context.Context) int {
	sessions, err := c.d.Sessions.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sweep: list sessions failed")
		return 0
	}
	observability.SetActiveSessions(len(sessions))

	cutoff := c.opts.Now().Add(-c.opts.SessionTimeout)
	sem := semaphore.NewWeighted(int64(c.opts.SweepWorkers))

	var (
		wg        sync.WaitGroup
		reclaimed atomic.Int64
	)
	for _, s := range sessions {
		if !s.LastActivity.Before(cutoff) {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			defer sem.Release(1)
			if c.reclaim(ctx, sender, cutoff) {
				reclaimed.Add(1)
			}
		}(s.Sender)
	}
	wg.Wait()
	return int(reclaimed.Load())
}

// reclaim re-reads the session under the sender lock; a turn that arrived
// since List keeps it alive.
func (c *Controller) reclaim(ctx context.Context, sender string, cutoff time.Time) bool {
	unlock := c.senders.Lock(sender)
	defer unlock()

	s, err := c.load(ctx, sender)
	if err != nil || s == nil || !s.LastActivity.Before(cutoff) {
		return false
	}

	if s.VenueName == nil {
		log.Info().Str("sender", observability.MaskSender(sender)).Msg("sweep: discarding idle session without venue")
		c.finish(ctx, s, domain.StateAbandoned)
		return true
	}

	log.Info().Str("sender", observability.MaskSender(sender)).Msg("sweep: auto-finalizing idle session")
	s.AwaitingApproval = false
	c.stopTimer(sender)
	if s.CleanedReview == nil {
		cleaned := c.synthesize(ctx, s.Transcripts)
		s.CleanedReview = &cleaned
	}

	state := domain.StateAbandoned
	if c.finalize(ctx, s, s.LastActivity, true) == finalizeSaved {
		state = domain.StateCompleted
	}
	c.finish(ctx, s, state)
	return true
}
