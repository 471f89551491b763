// internal/adapters/vonage/client.go
package vonage

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"voice_review/internal/adapters/observability"
	"voice_review/internal/domain"
)

const service = "vonage"

type Config struct {
	Base          string // e.g. https://api.nexmo.com
	ApplicationID string
	PrivateKeyPEM []byte
	From          string
	Channel       string // whatsapp
	RPS           int
}

// Client sends outbound messages and downloads inbound media through the
// Vonage Messages API using application JWTs.
type Client struct {
	base    string
	appID   string
	key     *rsa.PrivateKey
	from    string
	channel string
	hc      *http.Client
	rl      *rate.Limiter
}

func New(cfg Config) (*Client, error) {
	if cfg.ApplicationID == "" || len(cfg.PrivateKeyPEM) == 0 {
		return nil, fmt.Errorf("vonage application id and private key are required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse vonage private key: %w", err)
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Channel == "" {
		cfg.Channel = "whatsapp"
	}
	return &Client{
		base:    strings.TrimRight(cfg.Base, "/"),
		appID:   cfg.ApplicationID,
		key:     key,
		from:    cfg.From,
		channel: cfg.Channel,
		hc:      &http.Client{Timeout: 20 * time.Second},
		rl:      rate.NewLimiter(rate.Limit(cfg.RPS), cfg.RPS),
	}, nil
}

// ---- Public API ----

func (c *Client) SendMessage(ctx context.Context, to, text string) error {
	body := map[string]any{
		"from":         c.from,
		"to":           to,
		"channel":      c.channel,
		"message_type": "text",
		"text":         text,
	}
	return c.post(ctx, "messages", body)
}

// SendLocation sends a map pin as a WhatsApp custom location object.
func (c *Client) SendLocation(ctx context.Context, to string, pin domain.LocationPin) error {
	addr := pin.Address
	if addr == "" {
		addr = pin.Name
	}
	body := map[string]any{
		"from":         c.from,
		"to":           to,
		"channel":      c.channel,
		"message_type": "custom",
		"custom": map[string]any{
			"type": "location",
			"location": map[string]any{
				"longitude": pin.Coords.Lon,
				"latitude":  pin.Coords.Lat,
				"name":      pin.Name,
				"address":   addr,
			},
		},
	}
	return c.post(ctx, "messages", body)
}

// FetchMedia downloads an inbound media URL with JWT auth.
func (c *Client) FetchMedia(ctx context.Context, url string) ([]byte, string, error) {
	var (
		data []byte
		mime string
	)
	err := c.do(ctx, "media", http.MethodGet, url, nil, func(resp *http.Response) error {
		b, err := io.ReadAll(io.LimitReader(resp.Body, 25<<20))
		if err != nil {
			return err
		}
		data, mime = b, resp.Header.Get("Content-Type")
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("vonage: empty media body")
	}
	return data, mime, nil
}

// Token mints a short-lived application JWT.
func (c *Client) Token(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"application_id": c.appID,
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"jti":            uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.key)
}

// ---- Internals ----

var (
	ErrUnauthorized = errors.New("vonage: unauthorized")
	ErrForbidden    = errors.New("vonage: forbidden")
	ErrNotFound     = errors.New("vonage: not found")
)

func (c *Client) post(ctx context.Context, endpoint string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, endpoint, http.MethodPost, c.base+"/v1/messages", b, func(resp *http.Response) error {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
}

// do performs a request with client-side rate limiting and retries on 429
// and transient 5xx, honoring Retry-After when provided. onOK consumes the
// body of a 2xx response.
func (c *Client) do(ctx context.Context, endpoint, method, url string, body []byte, onOK func(*http.Response) error) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rdr)
		if err != nil {
			return err
		}
		tok, err := c.Token(time.Now())
		if err != nil {
			return fmt.Errorf("sign vonage jwt: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "voice-review/1.0")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(service, endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return unavailable(lastErr)
		}
		observability.ObserveExternal(service, endpoint, resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			err := onOK(resp)
			resp.Body.Close()
			return err

		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			return ErrUnauthorized

		case resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return ErrForbidden

		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("vonage: remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return unavailable(lastErr)

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("vonage: bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return unavailable(lastErr)
}

// unavailable marks an error that survived every retry.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrCollaboratorUnavailable, err)
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date); 0 if absent or invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff is 200ms doubling per attempt plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
