package mysql

// INSERT IGNORE keeps the first profile created for an id.
const insertVenueSQL = `
INSERT IGNORE INTO venues
  (id, name, description, location, address, lat, lon, website, category, amenities, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Note: `text` is reserved; keep it quoted everywhere.
const insertReviewSQL = "INSERT INTO reviews\n" +
	"  (id, venue_id, reviewer_name, sender, `text`, rating, rating_exact, aspects, sentiment, transcripts, created_at)\n" +
	"VALUES\n  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)\n"

// LAST_INSERT_ID(expr) makes the increment readable from the same connection's result.
const nextGuestSQL = `UPDATE guest_counter SET n = LAST_INSERT_ID(n + 1) WHERE id = 1`

const resetGuestSQL = `UPDATE guest_counter SET n = 0 WHERE id = 1`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const getVenueSQL = `
SELECT id, name, description, location, address, lat, lon, website, category, amenities, created_at
FROM venues
WHERE id = ?
`

const listVenueReviewsSQL = "SELECT id, venue_id, reviewer_name, sender, `text`, rating, rating_exact, aspects, sentiment, transcripts, created_at\n" +
	"FROM reviews\n" +
	"WHERE venue_id = ?\n" +
	"ORDER BY created_at DESC, id DESC\n"

const listVenuesSQL = `
SELECT v.id, v.name, v.location, v.category, COUNT(r.id) AS review_count, COALESCE(AVG(r.rating), 0) AS avg_rating
FROM venues v
LEFT JOIN reviews r ON r.venue_id = v.id
GROUP BY v.id, v.name, v.location, v.category
ORDER BY review_count DESC, v.name ASC
`
