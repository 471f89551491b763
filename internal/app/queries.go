package app

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"voice_review/internal/domain"
)

const venueListKey = "venues:all"

func venueKey(id string) string { return "venue:" + id }

// QueryService serves catalog reads through an optional cache.
type QueryService struct {
	catalog  domain.VenueCatalog
	notes    domain.VoiceNoteLog
	cache    domain.Cache
	cacheTTL time.Duration
	group    singleflight.Group
}

func NewQueryService(c domain.VenueCatalog, notes domain.VoiceNoteLog, cache domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{catalog: c, notes: notes, cache: cache, cacheTTL: ttl}
}

func (s *QueryService) ListVenues(ctx context.Context) ([]domain.VenueSummary, error) {
	var out []domain.VenueSummary
	if s.cacheGet(ctx, venueListKey, &out) {
		return out, nil
	}
	v, err, _ := s.group.Do(venueListKey, func() (any, error) {
		vs, err := s.catalog.ListVenues(ctx)
		if err != nil {
			return nil, err
		}
		if vs == nil {
			vs = []domain.VenueSummary{}
		}
		s.cacheSet(ctx, venueListKey, vs)
		return vs, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.VenueSummary(nil), v.([]domain.VenueSummary)...), nil
}

func (s *QueryService) GetVenue(ctx context.Context, id string) (domain.VenueProfile, error) {
	key := venueKey(id)
	var out domain.VenueProfile
	if s.cacheGet(ctx, key, &out) {
		return out, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		p, err := s.catalog.GetVenue(ctx, id)
		if err != nil {
			return domain.VenueProfile{}, err
		}
		s.cacheSet(ctx, key, p)
		return p, nil
	})
	if err != nil {
		return domain.VenueProfile{}, err
	}
	p := v.(domain.VenueProfile)
	// the profile is shared between singleflight waiters
	p.Reviews = append([]domain.Review(nil), p.Reviews...)
	p.Amenities = append([]string(nil), p.Amenities...)
	return p, nil
}

// ClearCatalog drops every venue and review and resets the guest counter.
func (s *QueryService) ClearCatalog(ctx context.Context) error {
	ids := []string{}
	if vs, err := s.catalog.ListVenues(ctx); err == nil {
		for _, v := range vs {
			ids = append(ids, v.ID)
		}
	}
	if err := s.catalog.Clear(ctx); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, venueListKey)
		for _, id := range ids {
			_ = s.cache.Del(ctx, venueKey(id))
		}
	}
	return nil
}

func (s *QueryService) ListVoiceNotes(ctx context.Context) (map[string][]domain.VoiceNote, error) {
	if s.notes == nil {
		return map[string][]domain.VoiceNote{}, nil
	}
	return s.notes.List(ctx)
}

func (s *QueryService) ClearVoiceNotes(ctx context.Context) error {
	if s.notes == nil {
		return nil
	}
	return s.notes.Clear(ctx)
}

func (s *QueryService) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, _ := s.cache.Get(ctx, key, dst)
	return ok
}

func (s *QueryService) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds()))
}
