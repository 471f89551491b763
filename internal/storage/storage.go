// Package storage holds catalog rules shared by the store implementations.
package storage

import (
	"math"
	"sort"

	"voice_review/internal/domain"
)

// Summarize computes the list view of a venue: review count and the mean of
// display ratings rounded to one decimal.
func Summarize(v domain.VenueProfile) domain.VenueSummary {
	s := domain.VenueSummary{
		ID:          v.ID,
		Name:        v.Name,
		Location:    v.Location,
		Category:    v.Category,
		ReviewCount: len(v.Reviews),
	}
	if n := len(v.Reviews); n > 0 {
		sum := 0
		for _, r := range v.Reviews {
			sum += r.Rating
		}
		s.AverageRating = RoundRating(float64(sum) / float64(n))
	}
	return s
}

func RoundRating(f float64) float64 { return math.Round(f*10) / 10 }

// SummaryLess orders by review count descending, then name.
func SummaryLess(a, b domain.VenueSummary) bool {
	if a.ReviewCount != b.ReviewCount {
		return a.ReviewCount > b.ReviewCount
	}
	return a.Name < b.Name
}

func SortReviewsNewestFirst(rs []domain.Review) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Timestamp.After(rs[j].Timestamp) })
}
