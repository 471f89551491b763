// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"voice_review/internal/app"
	"voice_review/internal/domain"
	"voice_review/internal/shared"
	"voice_review/internal/storage"
)

type Handlers struct {
	Q          *app.QueryService
	Inbound    domain.Dispatcher
	AdminToken string
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Post("/webhooks/inbound", h.inbound)
	s.mux.Post("/webhooks/status", h.status)

	s.mux.Get("/v1/venues", h.listVenues)
	s.mux.Get("/v1/venues/{id}", h.getVenue)
	s.mux.With(h.requireAdmin).Delete("/v1/venues", h.clearVenues)

	s.mux.Get("/v1/voice-notes", h.listVoiceNotes)
	s.mux.With(h.requireAdmin).Delete("/v1/voice-notes", h.clearVoiceNotes)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write body")
	}
}

// ---- webhooks ----

// inbound accepts a messaging-channel event. It always answers 200 once the
// body parses so the provider does not redeliver; processing is async.
func (h *Handlers) inbound(w http.ResponseWriter, r *http.Request) {
	var m map[string]any
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid payload", "body must be a JSON object")
		return
	}

	evt, ok := ParseInbound(m, time.Now().UTC())
	if !ok {
		log.Debug().Interface("type", m["message_type"]).Msg("inbound event ignored")
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	h.Inbound.Dispatch(evt)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ParseInbound maps a provider webhook body to an InboundEvent. The second
// result is false for events that carry nothing to process.
func ParseInbound(m map[string]any, now time.Time) (domain.InboundEvent, bool) {
	evt := domain.InboundEvent{
		Sender:    firstRaw(m, "from", "from.number"),
		Timestamp: now,
	}
	if evt.Sender == "" {
		return domain.InboundEvent{}, false
	}
	if ts := firstRaw(m, "timestamp"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			evt.Timestamp = t.UTC()
		}
	}

	kind := strings.ToLower(firstRaw(m, "message_type", "message.content.type"))
	switch kind {
	case "audio":
		evt.Kind = domain.TurnVoice
		evt.AudioRef = firstRaw(m, "audio.url", "message.content.audio.url", "message.audio.url")
		return evt, evt.AudioRef != ""
	case "", "text":
		evt.Kind = domain.TurnText
		evt.Text = firstRaw(m, "text", "message.content.text", "content.text")
		return evt, evt.Text != ""
	}
	return domain.InboundEvent{}, false
}

// firstRaw is shared.FirstStr without the nullish filter; "none" is a valid reply.
func firstRaw(m map[string]any, paths ...string) string {
	for _, p := range paths {
		if s := shared.LookupStr(m, p); s != "" {
			return s
		}
	}
	return ""
}

func (h *Handlers) status(w http.ResponseWriter, r *http.Request) {
	var m map[string]any
	_ = json.NewDecoder(r.Body).Decode(&m)
	log.Info().
		Str("message_uuid", shared.LookupStr(m, "message_uuid")).
		Str("status", shared.LookupStr(m, "status")).
		Str("to", shared.LookupStr(m, "to")).
		Msg("message status update")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ---- catalog ----

func (h *Handlers) listVenues(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.ListVenues(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list venues failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not list venues")
		return
	}
	writeCached(w, r, map[string]any{"venues": out})
}

// venueDetail is a profile with its list-view aggregates.
type venueDetail struct {
	domain.VenueProfile
	AverageRating float64 `json:"average_rating"`
	ReviewCount   int     `json:"review_count"`
}

func (h *Handlers) getVenue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := h.Q.GetVenue(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "venue not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("venue", id).Msg("get venue failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not load venue")
		return
	}
	switch r.URL.Query().Get("sort") {
	case "", "-timestamp":
	case "timestamp":
		sort.SliceStable(v.Reviews, func(i, j int) bool { return v.Reviews[i].Timestamp.Before(v.Reviews[j].Timestamp) })
	default:
		writeProblem(w, http.StatusBadRequest, "Invalid sort", "sort must be timestamp or -timestamp")
		return
	}
	sum := storage.Summarize(v)
	writeCached(w, r, venueDetail{VenueProfile: v, AverageRating: sum.AverageRating, ReviewCount: sum.ReviewCount})
}

func (h *Handlers) clearVenues(w http.ResponseWriter, r *http.Request) {
	if err := h.Q.ClearCatalog(r.Context()); err != nil {
		log.Error().Err(err).Msg("clear catalog failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not clear catalog")
		return
	}
	log.Warn().Msg("venue catalog cleared")
	w.WriteHeader(http.StatusNoContent)
}

// ---- voice notes ----

func (h *Handlers) listVoiceNotes(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.ListVoiceNotes(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list voice notes failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not list voice notes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voice_notes": out})
}

func (h *Handlers) clearVoiceNotes(w http.ResponseWriter, r *http.Request) {
	if err := h.Q.ClearVoiceNotes(r.Context()); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not clear voice notes")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireAdmin checks a bearer token; with no token configured admin routes are closed.
func (h *Handlers) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.AdminToken == "" {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin routes are disabled")
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.AdminToken)) != 1 {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
