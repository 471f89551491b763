package app

import (
	"math"
	"strings"

	"voice_review/internal/domain"
)

// AggregateRating averages the present aspect scores to one decimal; the
// display rating is that value rounded and clamped to [1,5]. With no scores
// it falls back to a sentiment mapping.
func AggregateRating(s *domain.ReviewSession) (exact float64, display int) {
	var sum, n int
	for _, a := range []*domain.Aspect{s.Food, s.Amenities, s.Location, s.Service} {
		if a != nil && a.Score != nil {
			sum += *a.Score
			n++
		}
	}
	if n == 0 {
		exact = sentimentScore(s.OverallSentiment)
	} else {
		exact = math.Round(float64(sum)/float64(n)*10) / 10
	}
	display = int(math.Round(exact))
	if display < 1 {
		display = 1
	}
	if display > 5 {
		display = 5
	}
	return exact, display
}

func sentimentScore(s *domain.Sentiment) float64 {
	if s == nil {
		return 3
	}
	switch *s {
	case domain.SentimentPositive:
		return 4
	case domain.SentimentNegative:
		return 2
	}
	return 3
}

func stars(n int) string { return strings.Repeat("*", n) }
