package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voice_review/internal/domain"
)

func TestSweep_ReclaimsIdleSessions(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	o := quietOptions()
	o.Now = func() time.Time { return now }
	h := newHarness(t, o, nil)
	ctx := context.Background()

	stale := now.Add(-6 * time.Minute)
	put := func(s *domain.ReviewSession) {
		t.Helper()
		require.NoError(t, h.sessions.Put(ctx, s))
	}
	put(&domain.ReviewSession{
		Sender:       "with-venue",
		VenueName:    str("The Grand"),
		ReviewerName: str("Sam"),
		Food:         &domain.Aspect{Summary: "good", Score: score(4)},
		Transcripts:  []string{"The Grand was good"},
		LastActivity: stale,
		State:        domain.StateCollecting,
	})
	put(&domain.ReviewSession{
		Sender:       "no-venue",
		Transcripts:  []string{"the food was nice"},
		LastActivity: stale,
		State:        domain.StateCollecting,
	})
	put(&domain.ReviewSession{
		Sender:       "fresh",
		VenueName:    str("The Ritz"),
		LastActivity: now.Add(-time.Minute),
		State:        domain.StateCollecting,
	})

	require.Equal(t, 2, h.ctrl.Sweep(ctx))

	left, err := h.sessions.List(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, "fresh", left[0].Sender)

	v, err := h.catalog.GetVenue(ctx, "the-grand")
	require.NoError(t, err)
	require.Len(t, v.Reviews, 1)
	r := v.Reviews[0]
	require.Equal(t, "Cleaned: The Grand was good", r.Text, "cleaned text is synthesized when missing")
	require.True(t, r.Timestamp.Equal(stale), "review keeps the last activity time")
	require.Equal(t, 4, r.Rating)
	require.Equal(t, 1, h.verify.calls())

	require.Zero(t, h.ctrl.Sweep(ctx), "nothing left to reclaim")
}

func TestSweep_UnverifiableVenueIsAbandoned(t *testing.T) {
	now := time.Now()
	o := quietOptions()
	o.Now = func() time.Time { return now }
	h := newHarness(t, o, nil)
	h.verify.fn = func(string, string) domain.VenueVerification { return domain.VenueVerification{} }
	ctx := context.Background()

	deadline := now.Add(-5 * time.Minute)
	require.NoError(t, h.sessions.Put(ctx, &domain.ReviewSession{
		Sender:           sender,
		VenueName:        str("Nowhere Inn"),
		Transcripts:      []string{"Nowhere Inn was fine"},
		CleanedReview:    str("Nowhere Inn was fine."),
		AwaitingApproval: true,
		ApprovalDeadline: &deadline,
		LastActivity:     now.Add(-10 * time.Minute),
		State:            domain.StateAwaitingApproval,
	}))

	require.Equal(t, 1, h.ctrl.Sweep(ctx))
	require.Nil(t, h.session(t))
	require.Equal(t, `I couldn't find "Nowhere Inn" as a real hotel. Your review was not saved.`, h.msgr.last())

	list, err := h.catalog.ListVenues(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSweep_CollectingSessionNeverOffersRetry(t *testing.T) {
	now := time.Now()
	o := quietOptions()
	o.Now = func() time.Time { return now }
	h := newHarness(t, o, nil)
	h.verify.fn = func(string, string) domain.VenueVerification {
		return domain.VenueVerification{Suggestion: str("The Nowhere Hotel")}
	}
	ctx := context.Background()

	require.NoError(t, h.sessions.Put(ctx, &domain.ReviewSession{
		Sender:       sender,
		VenueName:    str("Nowhere Inn"),
		Transcripts:  []string{"Nowhere Inn was fine"},
		LastActivity: now.Add(-6 * time.Minute),
		State:        domain.StateCollecting,
	}))

	require.Equal(t, 1, h.ctrl.Sweep(ctx))
	require.Nil(t, h.session(t))
	require.Equal(t, 1, h.verify.calls())
	last := h.msgr.last()
	require.Contains(t, last, "Your review was not saved.")
	require.NotContains(t, last, "Did you mean")
	require.NotContains(t, last, "say the hotel name again")
}

func TestRunSweeper_StopsOnContextCancel(t *testing.T) {
	h := newHarness(t, quietOptions(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.ctrl.RunSweeper(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
