package domain

import "context"

// SessionStore holds at most one active ReviewSession per sender.
type SessionStore interface {
	Get(ctx context.Context, sender string) (*ReviewSession, error) // ErrNotFound when absent
	Put(ctx context.Context, s *ReviewSession) error
	Delete(ctx context.Context, sender string) error
	List(ctx context.Context) ([]*ReviewSession, error)
}

type VenueCatalog interface {
	// Write paths
	CreateVenue(ctx context.Context, v VenueProfile) error
	AppendReview(ctx context.Context, venueID string, r Review) error
	NextGuestNumber(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error

	// Read paths
	GetVenue(ctx context.Context, id string) (VenueProfile, error) // ErrNotFound when absent
	ListVenues(ctx context.Context) ([]VenueSummary, error)
}

type VoiceNoteLog interface {
	Record(ctx context.Context, n VoiceNote) error
	Update(ctx context.Context, id string, status VoiceNoteStatus, transcript string) error
	List(ctx context.Context) (map[string][]VoiceNote, error)
	Clear(ctx context.Context) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Collaborators

type Transcriber interface {
	Transcribe(ctx context.Context, audioRef string) (string, error)
}

type Extractor interface {
	// prior is nil when the sender has no active session.
	ExtractReviewFields(ctx context.Context, text string, prior *ReviewSession) (Extraction, error)
}

type Synthesizer interface {
	SynthesizeCleanedReview(ctx context.Context, transcripts []string) (string, error)
}

type VenueVerifier interface {
	VerifyVenue(ctx context.Context, name, city string) (VenueVerification, error)
}

// Messenger delivers outbound notifications; callers log failures and move on.
type Messenger interface {
	SendMessage(ctx context.Context, to, text string) error
	SendLocation(ctx context.Context, to string, pin LocationPin) error
}

// Dispatcher accepts inbound events without blocking the caller.
type Dispatcher interface {
	Dispatch(evt InboundEvent)
}
