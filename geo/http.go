package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/cloudx-io/hotiron/core"
)

// HTTPConfig configures an HTTPGeocoder.
type HTTPConfig struct {
	// BaseURL is queried as GET BaseURL?q=<address>&format=json&limit=1.
	BaseURL   string `koanf:"base_url" validate:"omitempty,url"`
	UserAgent string `koanf:"user_agent"`

	// RequestsPerSecond bounds outbound lookups. Zero disables the limit.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`

	// Client credentials; when ClientID is empty requests are unauthenticated.
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	TokenURL     string   `koanf:"token_url" validate:"required_with=ClientID"`
	Scopes       []string `koanf:"scopes"`
}

// HTTPGeocoder resolves addresses against a Nominatim-compatible search API.
type HTTPGeocoder struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewHTTPGeocoder creates a geocoder. The returned geocoder never retries; the
// caller's context bounds every lookup.
func NewHTTPGeocoder(cfg HTTPConfig, logger *zap.Logger) (*HTTPGeocoder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("geocoder base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid geocoder base URL: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &http.Client{Timeout: 30 * time.Second}
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		client = cc.Client(context.Background())
		client.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "hotiron-geocoder/1.0"
	}

	return &HTTPGeocoder{
		baseURL:   cfg.BaseURL,
		userAgent: userAgent,
		client:    client,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (core.Point, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return core.Point{}, err
		}
	}

	u, err := url.Parse(g.baseURL)
	if err != nil {
		return core.Point{}, err
	}
	q := u.Query()
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return core.Point{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.userAgent)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return core.Point{}, fmt.Errorf("geocoder request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.Point{}, fmt.Errorf("geocoder returned status %d: %s", resp.StatusCode, body)
	}

	var results []searchResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&results); err != nil {
		return core.Point{}, fmt.Errorf("failed to decode geocoder response: %w", err)
	}
	if len(results) == 0 {
		return core.Point{}, fmt.Errorf("%w: no match for address %q", core.ErrGeocode, address)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return core.Point{}, fmt.Errorf("%w: invalid latitude %q", core.ErrGeocode, results[0].Lat)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return core.Point{}, fmt.Errorf("%w: invalid longitude %q", core.ErrGeocode, results[0].Lon)
	}

	g.logger.Debug("Geocoded address",
		zap.String("address", address),
		zap.String("match", results[0].DisplayName),
		zap.Duration("duration", time.Since(start)))

	return core.Point{Lat: lat, Lon: lon}, nil
}
