package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"voice_review/internal/adapters/observability"
	"voice_review/internal/domain"
)

type finalizeOutcome int

const (
	finalizeSaved finalizeOutcome = iota
	finalizeRetry
	finalizeAbandoned
)

// maxVerificationFailures abandons a session once this many names failed.
const maxVerificationFailures = 3

const (
	fallbackDescription = "A verified hotel."
	fallbackLocation    = "Location unknown"
	fallbackCategory    = "hotel"
)

var errUnverified = errors.New("venue could not be verified")

// finalize persists the approved review. Venue lookup, verification,
// profile creation and the append happen under the venue lock so that
// concurrent first reviews of one venue create a single profile.
// With terminal set (sweep) a failed verification never offers a retry.
func (c *Controller) finalize(ctx context.Context, s *domain.ReviewSession, at time.Time, terminal bool) finalizeOutcome {
	venue, review, suggestion, err := c.persistReview(ctx, s, at)
	switch {
	case errors.Is(err, errUnverified):
		return c.verificationFailed(ctx, s, suggestion, terminal)
	case err != nil:
		log.Error().Err(err).Str("sender", observability.MaskSender(s.Sender)).Msg("review persist failed")
		c.notify(ctx, s.Sender, "Sorry, something went wrong while saving your review. It was not saved.")
		return finalizeAbandoned
	}

	c.invalidateVenue(ctx, venue.ID)
	observability.ObserveReviewSaved()
	log.Info().
		Str("sender", observability.MaskSender(s.Sender)).
		Str("venue", venue.ID).
		Int("rating", review.Rating).
		Msg("review saved")

	c.notify(ctx, s.Sender, thankYouMessage(s.ReviewerName, venue.Name, review.Rating))
	if pin, ok := locationPin(venue); ok {
		sender := s.Sender
		c.after(c.opts.LocationDelay, func(ctx context.Context) {
			if err := c.d.Messenger.SendLocation(ctx, sender, pin); err != nil {
				log.Warn().Err(err).Str("to", observability.MaskSender(sender)).Msg("location message failed")
			}
		})
	}
	return finalizeSaved
}

func (c *Controller) persistReview(ctx context.Context, s *domain.ReviewSession, at time.Time) (domain.VenueProfile, domain.Review, *string, error) {
	name := deref(s.VenueName)
	id := domain.NormalizeVenueID(name)
	if id == "" {
		return domain.VenueProfile{}, domain.Review{}, nil, errUnverified
	}

	unlock := c.venues.Lock(id)
	defer unlock()

	venue, err := c.d.Catalog.GetVenue(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		v, verr := c.d.Verifier.VerifyVenue(ctx, name, verifyCity(name, deref(s.VenueCity)))
		if verr != nil {
			log.Warn().Err(verr).Str("venue", name).Msg("venue verification errored")
			return domain.VenueProfile{}, domain.Review{}, nil, errUnverified
		}
		if !v.Exists {
			return domain.VenueProfile{}, domain.Review{}, v.Suggestion, errUnverified
		}
		venue = newVenueProfile(id, s, v, at)
		if err := c.d.Catalog.CreateVenue(ctx, venue); err != nil {
			return domain.VenueProfile{}, domain.Review{}, nil, fmt.Errorf("create venue %s: %w", id, err)
		}
		log.Info().Str("venue", id).Str("name", venue.Name).Msg("venue profile created")
	default:
		return domain.VenueProfile{}, domain.Review{}, nil, fmt.Errorf("get venue %s: %w", id, err)
	}

	review, err := c.buildReview(ctx, venue.ID, s, at)
	if err != nil {
		return domain.VenueProfile{}, domain.Review{}, nil, err
	}
	if err := c.d.Catalog.AppendReview(ctx, venue.ID, review); err != nil {
		return domain.VenueProfile{}, domain.Review{}, nil, fmt.Errorf("append review %s: %w", venue.ID, err)
	}
	return venue, review, nil, nil
}

// verificationFailed applies the retry policy: the same name failing twice in
// a row, or three failures overall, abandons the session.
func (c *Controller) verificationFailed(ctx context.Context, s *domain.ReviewSession, suggestion *string, terminal bool) finalizeOutcome {
	name := deref(s.VenueName)
	observability.ObserveVerificationFailure()

	s.FailedVerificationCount++
	last := s.LastFailedVenueName
	s.LastFailedVenueName = &name

	log.Info().
		Str("sender", observability.MaskSender(s.Sender)).
		Str("venue", name).
		Int("failures", s.FailedVerificationCount).
		Msg("venue verification failed")

	if last != nil && strings.EqualFold(strings.TrimSpace(*last), strings.TrimSpace(name)) {
		c.notify(ctx, s.Sender, fmt.Sprintf("I could not find \"%s\" as a real hotel. Your review was not saved.", name))
		return finalizeAbandoned
	}
	if s.FailedVerificationCount >= maxVerificationFailures {
		c.notify(ctx, s.Sender, "I could not verify the hotel name. Your review was not saved.")
		return finalizeAbandoned
	}
	if terminal {
		c.notify(ctx, s.Sender, fmt.Sprintf("I couldn't find \"%s\" as a real hotel. Your review was not saved.", name))
		return finalizeAbandoned
	}

	msg := fmt.Sprintf("Hotel not found. I couldn't find \"%s\" as a real hotel.", name)
	if suggestion != nil && strings.TrimSpace(*suggestion) != "" {
		msg += fmt.Sprintf(" Did you mean %s?", strings.TrimSpace(*suggestion))
	} else {
		msg += " Could you please say the hotel name again?"
	}
	c.notify(ctx, s.Sender, msg)

	s.VenueName = nil
	s.AwaitingApproval = false
	return finalizeRetry
}

func (c *Controller) buildReview(ctx context.Context, venueID string, s *domain.ReviewSession, at time.Time) (domain.Review, error) {
	exact, display := AggregateRating(s)

	reviewer := strings.TrimSpace(deref(s.ReviewerName))
	if reviewer == "" {
		n, err := c.d.Catalog.NextGuestNumber(ctx)
		if err != nil {
			return domain.Review{}, fmt.Errorf("guest number: %w", err)
		}
		reviewer = fmt.Sprintf("Guest %d", n)
	}

	text := strings.TrimSpace(deref(s.CleanedReview))
	if text == "" {
		text = strings.Join(s.Transcripts, " ")
	}

	sentiment := domain.SentimentNeutral
	if s.OverallSentiment != nil {
		sentiment = *s.OverallSentiment
	}

	return domain.Review{
		ID:           uuid.NewString(),
		VenueID:      venueID,
		ReviewerName: reviewer,
		Sender:       s.Sender,
		Text:         text,
		Rating:       display,
		RatingExact:  exact,
		Food:         s.Food.Clone(),
		Amenities:    s.Amenities.Clone(),
		Location:     s.Location.Clone(),
		Service:      s.Service.Clone(),
		Sentiment:    sentiment,
		Transcripts:  append([]string(nil), s.Transcripts...),
		Timestamp:    at,
	}, nil
}

func newVenueProfile(id string, s *domain.ReviewSession, v domain.VenueVerification, at time.Time) domain.VenueProfile {
	amenities := v.Amenities
	if amenities == nil {
		amenities = []string{}
	}
	return domain.VenueProfile{
		ID:          id,
		Name:        firstNonEmpty(v.CanonicalName, deref(s.VenueName)),
		Description: firstNonEmpty(v.Description, fallbackDescription),
		Location:    firstNonEmpty(v.Location, deref(s.VenueCity), fallbackLocation),
		Address:     v.Address,
		Coords:      v.Coords,
		Website:     v.Website,
		Category:    firstNonEmpty(v.Category, fallbackCategory),
		Amenities:   amenities,
		Reviews:     []domain.Review{},
		CreatedAt:   at,
	}
}

// verifyCity returns the city to send with the lookup, or "" when the name
// already mentions it.
func verifyCity(name, city string) string {
	city = strings.TrimSpace(city)
	if city == "" || strings.Contains(strings.ToLower(name), strings.ToLower(city)) {
		return ""
	}
	return city
}

func thankYouMessage(reviewer *string, venue string, rating int) string {
	who := ""
	if r := strings.TrimSpace(deref(reviewer)); r != "" {
		who = ", " + r
	}
	return fmt.Sprintf("Thank you%s! Your review of %s has been recorded. Rating: %s (%d/5 stars)",
		who, venue, stars(rating), rating)
}

func locationPin(v domain.VenueProfile) (domain.LocationPin, bool) {
	if v.Coords == nil {
		return domain.LocationPin{}, false
	}
	addr := strings.TrimSpace(deref(v.Address))
	if addr == "" {
		addr = v.Location
	}
	return domain.LocationPin{Name: v.Name, Address: addr, Coords: *v.Coords}, true
}

func (c *Controller) invalidateVenue(ctx context.Context, id string) {
	if c.d.Cache == nil {
		return
	}
	_ = c.d.Cache.Del(ctx, venueKey(id))
	_ = c.d.Cache.Del(ctx, venueListKey)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
