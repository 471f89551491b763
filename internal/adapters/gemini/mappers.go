package gemini

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"voice_review/internal/domain"
	"voice_review/internal/shared"
)

// Alias registries: models drift between camelCase and snake_case keys.
var extractionAliases = map[string][]string{
	"is_review": {"isHotelReview", "is_hotel_review", "isReview", "is_review"},
	"venue":     {"hotelName", "hotel_name", "venueName", "venue_name", "hotel"},
	"city":      {"hotelCity", "hotel_city", "city"},
	"reviewer":  {"personName", "person_name", "reviewerName", "reviewer_name", "name"},
	"cleaned":   {"cleanedReview", "cleaned_review"},
	"sentiment": {"overallSentiment", "overall_sentiment", "sentiment"},
}

var verificationAliases = map[string][]string{
	"exists":     {"exists", "found", "isReal"},
	"name":       {"fullName", "full_name", "canonicalName", "name"},
	"suggestion": {"similarHotel", "similar_hotel", "suggestion"},
	"lat":        {"latitude", "lat", "coordinates.lat"},
	"lon":        {"longitude", "lon", "lng", "coordinates.lng", "coordinates.lon"},
}

// decodeObject strips markdown fences and decodes a JSON object.
func decodeObject(raw string) (map[string]any, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		s = s[i : j+1]
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode model json: %w", err)
	}
	return m, nil
}

func mapExtraction(m map[string]any) domain.Extraction {
	isReview, _ := shared.FirstBool(m, extractionAliases["is_review"]...)
	out := domain.Extraction{
		IsReview:      isReview,
		VenueName:     shared.FirstStrPtr(m, extractionAliases["venue"]...),
		VenueCity:     shared.FirstStrPtr(m, extractionAliases["city"]...),
		ReviewerName:  shared.FirstStrPtr(m, extractionAliases["reviewer"]...),
		CleanedReview: shared.FirstStrPtr(m, extractionAliases["cleaned"]...),
		Food:          mapAspect(m, "food"),
		Amenities:     mapAspect(m, "amenities"),
		Location:      mapAspect(m, "location"),
		Service:       mapAspect(m, "service"),
	}
	if s := shared.FirstStr(m, extractionAliases["sentiment"]...); s != "" {
		out.OverallSentiment = domain.ParseSentiment(s)
	}
	return out
}

// mapAspect reads "<name>" and "<name>Score"; either may be absent.
func mapAspect(m map[string]any, name string) *domain.Aspect {
	summary := shared.FirstStr(m, name, name+".summary")
	score := shared.FirstFloat(m, name+"Score", name+"_score", name+".score")

	var a domain.Aspect
	a.Summary = summary
	if score != nil {
		n := int(math.Round(*score))
		if n >= 1 && n <= 5 {
			a.Score = &n
		}
	}
	if a.Summary == "" && a.Score == nil {
		return nil
	}
	return &a
}

func mapVerification(m map[string]any) domain.VenueVerification {
	exists, _ := shared.FirstBool(m, verificationAliases["exists"]...)
	v := domain.VenueVerification{
		Exists:        exists,
		CanonicalName: shared.FirstStr(m, verificationAliases["name"]...),
		Description:   shared.FirstStr(m, "description"),
		Location:      shared.FirstStr(m, "location"),
		Address:       shared.FirstStrPtr(m, "address", "formatted_address"),
		Website:       shared.FirstStrPtr(m, "website", "url"),
		Category:      shared.FirstStr(m, "category"),
		Amenities:     shared.FirstStrings(m, "amenities"),
	}
	if !exists {
		v.Suggestion = shared.FirstStrPtr(m, verificationAliases["suggestion"]...)
		return v
	}
	lat := shared.FirstFloat(m, verificationAliases["lat"]...)
	lon := shared.FirstFloat(m, verificationAliases["lon"]...)
	if lat != nil && lon != nil && validCoords(*lat, *lon) {
		v.Coords = &domain.Coords{Lat: *lat, Lon: *lon}
	}
	return v
}

func validCoords(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
