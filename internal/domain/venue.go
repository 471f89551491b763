package domain

import (
	"regexp"
	"strings"
	"time"
)

type VenueProfile struct {
	ID          string    `json:"id"` // normalized from name, see NormalizeVenueID
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Address     *string   `json:"address,omitempty"`
	Coords      *Coords   `json:"coords,omitempty"`
	Website     *string   `json:"website,omitempty"`
	Category    string    `json:"category"`
	Amenities   []string  `json:"amenities"`
	Reviews     []Review  `json:"reviews"` // chronological, append-only
	CreatedAt   time.Time `json:"created_at"`
}

type Coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// VenueSummary is the list-view read model.
type VenueSummary struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Location      string  `json:"location"`
	Category      string  `json:"category"`
	ReviewCount   int     `json:"review_count"`
	AverageRating float64 `json:"average_rating"`
}

// VenueVerification is what the verification collaborator knows about a name.
type VenueVerification struct {
	Exists        bool
	CanonicalName string
	Description   string
	Location      string
	Address       *string
	Coords        *Coords
	Website       *string
	Category      string
	Amenities     []string
	Suggestion    *string // similar real venue when Exists is false
}

// LocationPin is an outbound map location message.
type LocationPin struct {
	Name    string
	Address string
	Coords  Coords
}

var nonAlnum = regexp.MustCompile(`[^\p{L}\p{M}\p{N}]+`)

// NormalizeVenueID lowercases name, collapses runs of anything that is not a
// letter, mark or digit (in any script) into "-" and trims leading/trailing
// separators.
func NormalizeVenueID(name string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
