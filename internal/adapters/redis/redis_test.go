package redisad_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	redisad "voice_review/internal/adapters/redis"
	"voice_review/internal/domain"
)

func newRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	return miniredis.RunT(t)
}

func TestSessions_RoundTripAndList(t *testing.T) {
	mr := newRedis(t)
	store := redisad.NewSessions(redisad.NewClient(mr.Addr(), "", 0), time.Hour)
	ctx := context.Background()

	_, err := store.Get(ctx, "447700900000")
	require.ErrorIs(t, err, domain.ErrNotFound)

	venue := "Hotel Lux"
	score := 4
	deadline := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := &domain.ReviewSession{
		Sender:           "447700900000",
		VenueName:        &venue,
		Food:             &domain.Aspect{Summary: "good", Score: &score},
		Transcripts:      []string{"hi"},
		AwaitingApproval: true,
		ApprovalDeadline: &deadline,
		State:            domain.StateAwaitingApproval,
	}
	require.NoError(t, store.Put(ctx, in))
	require.NoError(t, store.Put(ctx, &domain.ReviewSession{Sender: "other", State: domain.StateCollecting}))

	got, err := store.Get(ctx, "447700900000")
	require.NoError(t, err)
	require.Equal(t, "Hotel Lux", *got.VenueName)
	require.Equal(t, 4, *got.Food.Score)
	require.True(t, got.ApprovalDeadline.Equal(deadline))
	require.Equal(t, domain.StateAwaitingApproval, got.State)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, store.Delete(ctx, "other"))
	all, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestCache_GetSetDel(t *testing.T) {
	mr := newRedis(t)
	cache := redisad.NewCache(redisad.NewClient(mr.Addr(), "", 0))
	ctx := context.Background()

	var out []domain.VenueSummary
	ok, err := cache.Get(ctx, "venues:all", &out)
	require.NoError(t, err)
	require.False(t, ok)

	in := []domain.VenueSummary{{ID: "hotel-lux", Name: "Hotel Lux", ReviewCount: 2, AverageRating: 4.5}}
	require.NoError(t, cache.Set(ctx, "venues:all", in, 60))

	ok, err = cache.Get(ctx, "venues:all", &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, in, out)

	mr.FastForward(2 * time.Minute)
	ok, _ = cache.Get(ctx, "venues:all", &out)
	require.False(t, ok, "entry should expire")

	require.NoError(t, cache.Set(ctx, "k", 1, 60))
	require.NoError(t, cache.Del(ctx, "k"))
	ok, _ = cache.Get(ctx, "k", new(int))
	require.False(t, ok)
}

func TestCache_DropsUndecodableEntry(t *testing.T) {
	mr := newRedis(t)
	cache := redisad.NewCache(redisad.NewClient(mr.Addr(), "", 0))
	ctx := context.Background()

	require.NoError(t, mr.Set("cache:venue:hotel-lux", "not json"))

	var out domain.VenueProfile
	ok, err := cache.Get(ctx, "venue:hotel-lux", &out)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, mr.Exists("cache:venue:hotel-lux"))
}

func TestOpen_FailsWithoutServer(t *testing.T) {
	mr := newRedis(t)
	addr := mr.Addr()
	mr.Close()

	_, err := redisad.Open(context.Background(), addr, "", 0)
	require.Error(t, err)
}

func TestVoiceNotes_RecordUpdateList(t *testing.T) {
	mr := newRedis(t)
	l := redisad.NewVoiceNotes(redisad.NewClient(mr.Addr(), "", 0))
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.Record(ctx, domain.VoiceNote{ID: "2", Sender: "a", Status: domain.VoiceNotePending, Timestamp: t0.Add(time.Minute)}))
	require.NoError(t, l.Record(ctx, domain.VoiceNote{ID: "1", Sender: "a", Status: domain.VoiceNotePending, Timestamp: t0}))
	require.NoError(t, l.Update(ctx, "1", domain.VoiceNoteTranscribed, "hello"))
	require.ErrorIs(t, l.Update(ctx, "missing", domain.VoiceNoteFailed, ""), domain.ErrNotFound)

	all, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, all["a"], 2)
	require.Equal(t, "1", all["a"][0].ID)
	require.Equal(t, "hello", all["a"][0].Transcript)

	require.NoError(t, l.Clear(ctx))
	all, err = l.List(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}
