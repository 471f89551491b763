package domain

import (
	"strings"
	"time"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentMixed    Sentiment = "mixed"
	SentimentNeutral  Sentiment = "neutral"
)

// ParseSentiment returns nil for anything outside the known vocabulary.
func ParseSentiment(s string) *Sentiment {
	switch v := Sentiment(strings.ToLower(strings.TrimSpace(s))); v {
	case SentimentPositive, SentimentNegative, SentimentMixed, SentimentNeutral:
		return &v
	}
	return nil
}

// Aspect is one review dimension: a short summary and a 1-5 score.
type Aspect struct {
	Summary string `json:"summary"`
	Score   *int   `json:"score,omitempty"`
}

// Review is immutable once appended to its venue.
type Review struct {
	ID           string    `json:"id"`
	VenueID      string    `json:"venue_id"`
	ReviewerName string    `json:"reviewer_name"`
	Sender       string    `json:"sender"`
	Text         string    `json:"text"`
	Rating       int       `json:"rating"`       // 1..5
	RatingExact  float64   `json:"rating_exact"` // one decimal
	Food         *Aspect   `json:"food,omitempty"`
	Amenities    *Aspect   `json:"amenities,omitempty"`
	Location     *Aspect   `json:"location,omitempty"`
	Service      *Aspect   `json:"service,omitempty"`
	Sentiment    Sentiment `json:"sentiment"`
	Transcripts  []string  `json:"transcripts"`
	Timestamp    time.Time `json:"timestamp"`
}
