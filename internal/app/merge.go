package app

import (
	"strings"
	"time"

	"voice_review/internal/domain"
)

// Merge folds one turn's extraction into a copy of s. Non-nil fields in u
// overwrite, nil fields are a no-op, so known values never revert to unknown.
// The raw turn text is appended to the transcripts and at becomes LastActivity.
func Merge(s *domain.ReviewSession, u domain.Extraction, text string, at time.Time) *domain.ReviewSession {
	out := s.Clone()

	out.VenueName = mergeStr(out.VenueName, u.VenueName)
	out.VenueCity = mergeStr(out.VenueCity, u.VenueCity)
	out.ReviewerName = mergeStr(out.ReviewerName, u.ReviewerName)

	out.Food = mergeAspect(out.Food, u.Food)
	out.Amenities = mergeAspect(out.Amenities, u.Amenities)
	out.Location = mergeAspect(out.Location, u.Location)
	out.Service = mergeAspect(out.Service, u.Service)

	if u.OverallSentiment != nil {
		v := *u.OverallSentiment
		out.OverallSentiment = &v
	}

	if t := strings.TrimSpace(text); t != "" {
		out.Transcripts = append(out.Transcripts, t)
	}
	out.LastActivity = at
	return out
}

func mergeStr(cur, upd *string) *string {
	if upd == nil || strings.TrimSpace(*upd) == "" {
		return cur
	}
	v := strings.TrimSpace(*upd)
	return &v
}

// summary and score merge independently
func mergeAspect(cur, upd *domain.Aspect) *domain.Aspect {
	if upd == nil {
		return cur
	}
	out := cur.Clone()
	if out == nil {
		out = &domain.Aspect{}
	}
	if s := strings.TrimSpace(upd.Summary); s != "" {
		out.Summary = s
	}
	if upd.Score != nil {
		v := *upd.Score
		out.Score = &v
	}
	if out.Summary == "" && out.Score == nil {
		return cur
	}
	return out
}
