package acquisition

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/mosport/venue-signal/internal/model"
	"github.com/mosport/venue-signal/internal/resilience"
)

// Option configures an HTTPSource.
type Option func(*HTTPSource)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *HTTPSource) { s.http = hc }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSec float64, burst int) Option {
	return func(s *HTTPSource) {
		if perSec > 0 {
			if burst <= 0 {
				burst = 1
			}
			s.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

// WithGuard sets the retry and breaker policy.
func WithGuard(g *resilience.Guard) Option {
	return func(s *HTTPSource) { s.guard = g }
}

// HTTPSource reads posts from a social feed API:
//
//	GET {base}/venues/{id}/posts?limit=N
//	{"data":[{"id":"...","text":"...","image_url":"...","captured_at":"RFC3339"}]}
type HTTPSource struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	guard   *resilience.Guard
}

// NewHTTPSource creates a feed client.
func NewHTTPSource(baseURL, apiKey string, opts ...Option) *HTTPSource {
	s := &HTTPSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		guard:   &resilience.Guard{Name: "feed"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type postsResponse struct {
	Data []post `json:"data"`
}

type post struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	ImageURL   string    `json:"image_url"`
	CapturedAt time.Time `json:"captured_at"`
}

// Recent implements Source.
func (s *HTTPSource) Recent(ctx context.Context, venueID string, limit int) ([]model.RawSignal, error) {
	return resilience.Run(ctx, s.guard, func(ctx context.Context) ([]model.RawSignal, error) {
		return s.fetch(ctx, venueID, limit)
	})
}

func (s *HTTPSource) fetch(ctx context.Context, venueID string, limit int) ([]model.RawSignal, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "acquisition: rate limit wait")
	}

	u := fmt.Sprintf("%s/venues/%s/posts?limit=%s", s.baseURL, url.PathEscape(venueID), strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "acquisition: create request")
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "acquisition: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrap(err, "acquisition: read body")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &resilience.StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	var pr postsResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, eris.Wrap(err, "acquisition: decode posts")
	}

	out := make([]model.RawSignal, 0, len(pr.Data))
	for _, p := range pr.Data {
		if p.ID == "" {
			continue
		}
		out = append(out, model.RawSignal{
			ID:         p.ID,
			Text:       p.Text,
			ImageRef:   p.ImageURL,
			CapturedAt: p.CapturedAt.UTC(),
		})
	}
	return out, nil
}
