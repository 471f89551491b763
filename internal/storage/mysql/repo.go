package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"voice_review/internal/domain"
	"voice_review/internal/storage"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// aspectsDoc is the JSON shape of the reviews.aspects column.
type aspectsDoc struct {
	Food      *domain.Aspect `json:"food,omitempty"`
	Amenities *domain.Aspect `json:"amenities,omitempty"`
	Location  *domain.Aspect `json:"location,omitempty"`
	Service   *domain.Aspect `json:"service,omitempty"`
}

// Repo is the MySQL-backed VenueCatalog.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) CreateVenue(ctx context.Context, v domain.VenueProfile) error {
	amen, err := json.Marshal(orEmpty(v.Amenities))
	if err != nil {
		return err
	}
	var lat, lon any
	if v.Coords != nil {
		lat, lon = v.Coords.Lat, v.Coords.Lon
	}
	_, err = r.db.ExecContext(ctx, insertVenueSQL,
		v.ID,
		v.Name,
		v.Description,
		v.Location,
		valStr(v.Address),
		lat, lon,
		valStr(v.Website),
		v.Category,
		string(amen),
		v.CreatedAt.UTC(),
	)
	return err
}

func (r *Repo) AppendReview(ctx context.Context, venueID string, rv domain.Review) error {
	aspects, err := json.Marshal(aspectsDoc{Food: rv.Food, Amenities: rv.Amenities, Location: rv.Location, Service: rv.Service})
	if err != nil {
		return err
	}
	transcripts, err := json.Marshal(orEmpty(rv.Transcripts))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, insertReviewSQL,
		rv.ID,
		venueID,
		rv.ReviewerName,
		rv.Sender,
		rv.Text,
		rv.Rating,
		rv.RatingExact,
		string(aspects),
		string(rv.Sentiment),
		string(transcripts),
		rv.Timestamp.UTC(),
	)
	return err
}

func (r *Repo) NextGuestNumber(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, nextGuestSQL)
	if err != nil {
		return 0, err
	}
	n, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("guest_counter row missing; run migrations")
	}
	return n, nil
}

// Clear removes every venue and review and resets the guest counter.
func (r *Repo) Clear(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{"DELETE FROM reviews", "DELETE FROM venues", resetGuestSQL} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear catalog: %w", err)
		}
	}
	return tx.Commit()
}

func (r *Repo) GetVenue(ctx context.Context, id string) (domain.VenueProfile, error) {
	var (
		v             domain.VenueProfile
		address, site sql.NullString
		lat, lon      sql.NullFloat64
		amenitiesJSON []byte
	)
	err := r.db.QueryRowContext(ctx, getVenueSQL, id).Scan(
		&v.ID, &v.Name, &v.Description, &v.Location,
		&address, &lat, &lon, &site,
		&v.Category, &amenitiesJSON, &v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.VenueProfile{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.VenueProfile{}, err
	}
	v.Address = nullStr(address)
	v.Website = nullStr(site)
	if lat.Valid && lon.Valid {
		v.Coords = &domain.Coords{Lat: lat.Float64, Lon: lon.Float64}
	}
	decodeColumn(amenitiesJSON, &v.Amenities, "venues.amenities", v.ID)
	if v.Amenities == nil {
		v.Amenities = []string{}
	}

	reviews, err := r.listReviews(ctx, id)
	if err != nil {
		return domain.VenueProfile{}, err
	}
	v.Reviews = reviews
	return v, nil
}

func (r *Repo) listReviews(ctx context.Context, venueID string) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, listVenueReviewsSQL, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Review{}
	for rows.Next() {
		var (
			rv                     domain.Review
			sentiment              string
			aspectsRaw, transcRaws []byte
		)
		if err := rows.Scan(
			&rv.ID, &rv.VenueID, &rv.ReviewerName, &rv.Sender, &rv.Text,
			&rv.Rating, &rv.RatingExact, &aspectsRaw, &sentiment, &transcRaws, &rv.Timestamp,
		); err != nil {
			return nil, err
		}
		var a aspectsDoc
		decodeColumn(aspectsRaw, &a, "reviews.aspects", rv.ID)
		rv.Food, rv.Amenities, rv.Location, rv.Service = a.Food, a.Amenities, a.Location, a.Service
		rv.Sentiment = domain.Sentiment(sentiment)
		decodeColumn(transcRaws, &rv.Transcripts, "reviews.transcripts", rv.ID)
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *Repo) ListVenues(ctx context.Context) ([]domain.VenueSummary, error) {
	rows, err := r.db.QueryContext(ctx, listVenuesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.VenueSummary{}
	for rows.Next() {
		var s domain.VenueSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Location, &s.Category, &s.ReviewCount, &s.AverageRating); err != nil {
			return nil, err
		}
		s.AverageRating = storage.RoundRating(s.AverageRating)
		out = append(out, s)
	}
	return out, rows.Err()
}

// decodeColumn unmarshals a JSON column into dst. A corrupt value is logged
// and skipped so the rest of the row stays readable.
func decodeColumn(raw []byte, dst any, column, id string) bool {
	if len(raw) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Warn().Err(err).Str("column", column).Str("id", id).Msg("undecodable json column")
		return false
	}
	return true
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
