package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"voice_review/internal/domain"
	"voice_review/internal/storage"
)

// Catalog is a process-local VenueCatalog.
type Catalog struct {
	mu     sync.RWMutex
	venues map[string]*domain.VenueProfile
	guests atomic.Int64
}

func NewCatalog() *Catalog {
	return &Catalog{venues: make(map[string]*domain.VenueProfile)}
}

// CreateVenue is a no-op when the id already exists.
func (c *Catalog) CreateVenue(_ context.Context, v domain.VenueProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.venues[v.ID]; ok {
		return nil
	}
	cp := copyProfile(v)
	cp.Reviews = []domain.Review{}
	c.venues[v.ID] = &cp
	return nil
}

func (c *Catalog) AppendReview(_ context.Context, venueID string, r domain.Review) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.venues[venueID]
	if !ok {
		return fmt.Errorf("append review to %s: %w", venueID, domain.ErrNotFound)
	}
	v.Reviews = append(v.Reviews, r)
	return nil
}

func (c *Catalog) NextGuestNumber(_ context.Context) (int64, error) {
	return c.guests.Add(1), nil
}

func (c *Catalog) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.venues = make(map[string]*domain.VenueProfile)
	c.guests.Store(0)
	return nil
}

// GetVenue returns the profile with reviews newest first.
func (c *Catalog) GetVenue(_ context.Context, id string) (domain.VenueProfile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.venues[id]
	if !ok {
		return domain.VenueProfile{}, domain.ErrNotFound
	}
	out := copyProfile(*v)
	storage.SortReviewsNewestFirst(out.Reviews)
	return out, nil
}

func (c *Catalog) ListVenues(_ context.Context) ([]domain.VenueSummary, error) {
	c.mu.RLock()
	out := make([]domain.VenueSummary, 0, len(c.venues))
	for _, v := range c.venues {
		out = append(out, storage.Summarize(*v))
	}
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return storage.SummaryLess(out[i], out[j]) })
	return out, nil
}

func copyProfile(v domain.VenueProfile) domain.VenueProfile {
	v.Amenities = append([]string(nil), v.Amenities...)
	v.Reviews = append([]domain.Review(nil), v.Reviews...)
	return v
}
