package redisad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"voice_review/internal/domain"
)

const voiceNotesKey = "voicenotes"

// VoiceNotes keeps the voice-note log in one hash (id -> JSON) so the API
// and the ingestor see the same log.
type VoiceNotes struct{ c redis.UniversalClient }

func NewVoiceNotes(c redis.UniversalClient) *VoiceNotes { return &VoiceNotes{c: c} }

func (l *VoiceNotes) Record(ctx context.Context, n domain.VoiceNote) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return l.c.HSet(ctx, voiceNotesKey, n.ID, b).Err()
}

func (l *VoiceNotes) Update(ctx context.Context, id string, status domain.VoiceNoteStatus, transcript string) error {
	b, err := l.c.HGet(ctx, voiceNotesKey, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	var n domain.VoiceNote
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode voice note %s: %w", id, err)
	}
	n.Status, n.Transcript = status, transcript
	return l.Record(ctx, n)
}

// List groups notes by sender, oldest first.
func (l *VoiceNotes) List(ctx context.Context) (map[string][]domain.VoiceNote, error) {
	all, err := l.c.HGetAll(ctx, voiceNotesKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]domain.VoiceNote)
	for id, raw := range all {
		var n domain.VoiceNote
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("decode voice note %s: %w", id, err)
		}
		out[n.Sender] = append(out[n.Sender], n)
	}
	for _, ns := range out {
		sort.SliceStable(ns, func(i, j int) bool { return ns[i].Timestamp.Before(ns[j].Timestamp) })
	}
	return out, nil
}

func (l *VoiceNotes) Clear(ctx context.Context) error {
	return l.c.Del(ctx, voiceNotesKey).Err()
}
