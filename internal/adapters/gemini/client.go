package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"voice_review/internal/adapters/observability"
	"voice_review/internal/domain"
)

const service = "gemini"

// Generator runs one prompt against a model and returns its text output.
type Generator interface {
	Generate(ctx context.Context, parts []*genai.Part, jsonOut bool) (string, error)
}

// MediaFetcher downloads inbound audio (the messaging adapter implements it).
type MediaFetcher interface {
	FetchMedia(ctx context.Context, url string) ([]byte, string, error)
}

// Client implements the transcription, extraction, synthesis and venue
// verification collaborators on top of a Gemini model.
type Client struct {
	gen   Generator
	media MediaFetcher
	rl    *rate.Limiter
}

func New(ctx context.Context, apiKey, model string, rps int, media MediaFetcher) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return NewWithGenerator(&genaiGenerator{client: gc, model: model}, media, rps), nil
}

func NewWithGenerator(g Generator, media MediaFetcher, rps int) *Client {
	if rps <= 0 {
		rps = 5
	}
	return &Client{gen: g, media: media, rl: rate.NewLimiter(rate.Limit(rps), rps)}
}

var ErrUnintelligible = errors.New("gemini: audio could not be transcribed")

func (c *Client) Transcribe(ctx context.Context, audioRef string) (string, error) {
	if c.media == nil {
		return "", errors.New("gemini: no media fetcher configured")
	}
	data, mime, err := c.media.FetchMedia(ctx, audioRef)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}
	if mime == "" || !strings.HasPrefix(mime, "audio/") {
		mime = "audio/ogg"
	}
	out, err := c.generate(ctx, "transcribe", []*genai.Part{
		genai.NewPartFromBytes(data, mime),
		genai.NewPartFromText(transcribePrompt),
	}, false)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" || strings.Contains(out, unableToTranscribe) {
		return "", ErrUnintelligible
	}
	return out, nil
}

func (c *Client) ExtractReviewFields(ctx context.Context, text string, prior *domain.ReviewSession) (domain.Extraction, error) {
	out, err := c.generate(ctx, "extract", []*genai.Part{genai.NewPartFromText(extractPrompt(text, prior))}, true)
	if err != nil {
		return domain.Extraction{}, err
	}
	m, err := decodeObject(out)
	if err != nil {
		return domain.Extraction{}, err
	}
	return mapExtraction(m), nil
}

func (c *Client) SynthesizeCleanedReview(ctx context.Context, transcripts []string) (string, error) {
	if len(transcripts) == 0 {
		return "", nil
	}
	out, err := c.generate(ctx, "synthesize", []*genai.Part{genai.NewPartFromText(synthesizePrompt(transcripts))}, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) VerifyVenue(ctx context.Context, name, city string) (domain.VenueVerification, error) {
	out, err := c.generate(ctx, "verify", []*genai.Part{genai.NewPartFromText(verifyPrompt(name, city))}, true)
	if err != nil {
		return domain.VenueVerification{}, err
	}
	m, err := decodeObject(out)
	if err != nil {
		return domain.VenueVerification{}, err
	}
	v := mapVerification(m)
	log.Debug().Str("venue", name).Bool("exists", v.Exists).Msg("venue verification result")
	return v, nil
}

func (c *Client) generate(ctx context.Context, endpoint string, parts []*genai.Part, jsonOut bool) (string, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return "", err
	}
	start := time.Now()
	out, err := c.gen.Generate(ctx, parts, jsonOut)
	status := 200
	if err != nil {
		status = 0
	}
	observability.ObserveExternal(service, endpoint, status, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w: %w", endpoint, domain.ErrCollaboratorUnavailable, err)
	}
	return out, nil
}

type genaiGenerator struct {
	client *genai.Client
	model  string
}

func (g *genaiGenerator) Generate(ctx context.Context, parts []*genai.Part, jsonOut bool) (string, error) {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.2)}
	if jsonOut {
		cfg.ResponseMIMEType = "application/json"
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
