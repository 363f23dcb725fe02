// Package geocode resolves country names to coordinates through a
// Nominatim-compatible search service.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"worldpanel/internal/model"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org/"
	defaultUserAgent = "worldpanel/0.1"
)

var ErrNoMatch = eris.New("geocode: no match")

// Client geocodes a free-form query.
type Client interface {
	Geocode(ctx context.Context, query string) (model.Coordinates, error)
}

// Option configures the geocoder.
type Option func(*geocoder)

func WithBaseURL(base string) Option {
	return func(g *geocoder) {
		if strings.TrimSpace(base) != "" {
			g.baseURL = strings.TrimRight(base, "/") + "/"
		}
	}
}

// WithUserAgent sets the User-Agent header; Nominatim rejects anonymous clients.
func WithUserAgent(agent string) Option {
	return func(g *geocoder) {
		if agent != "" {
			g.userAgent = agent
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		if rps <= 0 {
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type geocoder struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(opts ...Option) Client {
	g := &geocoder{
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(1, 1), // Nominatim usage policy: 1 req/s
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (g *geocoder) Geocode(ctx context.Context, query string) (model.Coordinates, error) {
	if strings.TrimSpace(query) == "" {
		return model.Coordinates{}, eris.Wrap(ErrNoMatch, "geocode: empty query")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return model.Coordinates{}, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	reqURL := g.baseURL + "search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Coordinates{}, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return model.Coordinates{}, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return model.Coordinates{}, eris.Errorf("geocode: returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Coordinates{}, eris.Wrap(err, "geocode: read body")
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return model.Coordinates{}, eris.Wrap(err, "geocode: parse response")
	}
	if len(results) == 0 {
		return model.Coordinates{}, eris.Wrapf(ErrNoMatch, "geocode: %q", query)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return model.Coordinates{}, eris.Wrap(err, "geocode: parse latitude")
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return model.Coordinates{}, eris.Wrap(err, "geocode: parse longitude")
	}
	return model.Coordinates{Latitude: lat, Longitude: lon}, nil
}

// Locator turns geocoding failures into the (0,0) sentinel so a run can
// finish with reduced coverage.
type Locator struct {
	client Client
}

func NewLocator(client Client) *Locator {
	return &Locator{client: client}
}

// Locate never fails; Found is false when the sentinel was substituted.
func (l *Locator) Locate(ctx context.Context, country string) (model.Coordinates, bool) {
	coords, err := l.client.Geocode(ctx, country)
	if err != nil {
		zap.L().Warn("no location found",
			zap.String("country", country),
			zap.Error(err),
		)
		return model.Coordinates{}, false
	}
	return coords, true
}

// LocateAll geocodes each country once, sequentially.
func (l *Locator) LocateAll(ctx context.Context, countries []string) map[string]model.Coordinates {
	out := make(map[string]model.Coordinates, len(countries))
	failed := 0
	for _, country := range countries {
		if _, ok := out[country]; ok {
			continue
		}
		coords, ok := l.Locate(ctx, country)
		if !ok {
			failed++
		}
		out[country] = coords
	}
	zap.L().Info("geocoded countries",
		zap.Int("countries", len(out)),
		zap.Int("failed", failed),
	)
	return out
}
