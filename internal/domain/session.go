package domain

import "time"

type SessionState string

const (
	StateCollecting       SessionState = "COLLECTING"
	StateAwaitingApproval SessionState = "AWAITING_APPROVAL"
	StateCompleted        SessionState = "COMPLETED"
	StateAbandoned        SessionState = "ABANDONED"
)

// MaxQuestions bounds follow-up questions per session.
const MaxQuestions = 3

// ReviewSession is the per-sender accumulating record of an in-progress review.
type ReviewSession struct {
	Sender       string  `json:"sender"`
	VenueName    *string `json:"venue_name,omitempty"`
	VenueCity    *string `json:"venue_city,omitempty"`
	ReviewerName *string `json:"reviewer_name,omitempty"`

	Food      *Aspect `json:"food,omitempty"`
	Amenities *Aspect `json:"amenities,omitempty"`
	Location  *Aspect `json:"location,omitempty"`
	Service   *Aspect `json:"service,omitempty"`

	OverallSentiment *Sentiment `json:"overall_sentiment,omitempty"`
	Transcripts      []string   `json:"transcripts"`
	CleanedReview    *string    `json:"cleaned_review,omitempty"`
	QuestionsAsked   int        `json:"questions_asked"`

	AwaitingApproval bool       `json:"awaiting_approval"`
	ApprovalDeadline *time.Time `json:"approval_deadline,omitempty"`

	FailedVerificationCount int     `json:"failed_verification_count"`
	LastFailedVenueName     *string `json:"last_failed_venue_name,omitempty"`

	LastActivity time.Time    `json:"last_activity"`
	State        SessionState `json:"state"`
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s *ReviewSession) Clone() *ReviewSession {
	if s == nil {
		return nil
	}
	out := *s
	out.VenueName = cloneStr(s.VenueName)
	out.VenueCity = cloneStr(s.VenueCity)
	out.ReviewerName = cloneStr(s.ReviewerName)
	out.CleanedReview = cloneStr(s.CleanedReview)
	out.LastFailedVenueName = cloneStr(s.LastFailedVenueName)
	out.Food = s.Food.Clone()
	out.Amenities = s.Amenities.Clone()
	out.Location = s.Location.Clone()
	out.Service = s.Service.Clone()
	if s.OverallSentiment != nil {
		v := *s.OverallSentiment
		out.OverallSentiment = &v
	}
	if s.ApprovalDeadline != nil {
		t := *s.ApprovalDeadline
		out.ApprovalDeadline = &t
	}
	out.Transcripts = append([]string(nil), s.Transcripts...)
	return &out
}

func (a *Aspect) Clone() *Aspect {
	if a == nil {
		return nil
	}
	out := Aspect{Summary: a.Summary}
	if a.Score != nil {
		v := *a.Score
		out.Score = &v
	}
	return &out
}

// Known reports whether the aspect carries a summary.
func (a *Aspect) Known() bool { return a != nil && a.Summary != "" }

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Extraction is one turn's structured output from the extraction collaborator.
// Nil fields mean "not mentioned in this turn".
type Extraction struct {
	IsReview         bool
	VenueName        *string
	VenueCity        *string
	ReviewerName     *string
	CleanedReview    *string
	Food             *Aspect
	Amenities        *Aspect
	Location         *Aspect
	Service          *Aspect
	OverallSentiment *Sentiment
}

type TurnKind string

const (
	TurnText  TurnKind = "text"
	TurnVoice TurnKind = "voice"
)

// InboundEvent is a transport-neutral inbound chat message.
type InboundEvent struct {
	Sender    string    `json:"sender"`
	Kind      TurnKind  `json:"kind"`
	Text      string    `json:"text,omitempty"`
	AudioRef  string    `json:"audio_ref,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type VoiceNoteStatus string

const (
	VoiceNotePending     VoiceNoteStatus = "pending"
	VoiceNoteTranscribed VoiceNoteStatus = "transcribed"
	VoiceNoteFailed      VoiceNoteStatus = "failed"
)

// VoiceNote is the log entry kept for every inbound voice turn.
type VoiceNote struct {
	ID         string          `json:"id"`
	Sender     string          `json:"sender"`
	AudioRef   string          `json:"audio_ref"`
	Transcript string          `json:"transcript,omitempty"`
	Status     VoiceNoteStatus `json:"status"`
	Timestamp  time.Time       `json:"timestamp"`
}
