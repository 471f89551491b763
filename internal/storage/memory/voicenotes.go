package memory

import (
	"context"
	"sync"

	"voice_review/internal/domain"
)

// VoiceNotes keeps every inbound voice note per sender, in arrival order.
type VoiceNotes struct {
	mu    sync.Mutex
	order map[string][]string
	notes map[string]domain.VoiceNote
}

func NewVoiceNotes() *VoiceNotes {
	return &VoiceNotes{order: make(map[string][]string), notes: make(map[string]domain.VoiceNote)}
}

func (l *VoiceNotes) Record(_ context.Context, n domain.VoiceNote) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.notes[n.ID]; !ok {
		l.order[n.Sender] = append(l.order[n.Sender], n.ID)
	}
	l.notes[n.ID] = n
	return nil
}

func (l *VoiceNotes) Update(_ context.Context, id string, status domain.VoiceNoteStatus, transcript string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.notes[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.Status = status
	n.Transcript = transcript
	l.notes[id] = n
	return nil
}

func (l *VoiceNotes) List(_ context.Context) (map[string][]domain.VoiceNote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string][]domain.VoiceNote, len(l.order))
	for sender, ids := range l.order {
		ns := make([]domain.VoiceNote, 0, len(ids))
		for _, id := range ids {
			ns = append(ns, l.notes[id])
		}
		out[sender] = ns
	}
	return out, nil
}

func (l *VoiceNotes) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = make(map[string][]string)
	l.notes = make(map[string]domain.VoiceNote)
	return nil
}
