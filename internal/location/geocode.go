package location

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/data-for-change/anyway-sub000/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GeocodeResult is a geocoded address broken into the components the
// resolution logic needs.
type GeocodeResult struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	FormattedAddress string  `json:"formatted_address"`
	Street           string  `json:"street,omitempty"`
	City             string  `json:"city,omitempty"`
	District         string  `json:"district,omitempty"`
	Region           string  `json:"region,omitempty"`
	LocationType     string  `json:"location_type,omitempty"`
	Matched          bool    `json:"matched"`
}

// Geocoder turns an address phrase into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeocodeResult, error)
}

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	AddressComponents []struct {
		LongName string   `json:"long_name"`
		Types    []string `json:"types"`
	} `json:"address_components"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// GeocoderOption configures a GoogleGeocoder.
type GeocoderOption func(*GoogleGeocoder)

// WithBaseURL points the geocoder at another endpoint.
func WithBaseURL(u string) GeocoderOption {
	return func(g *GoogleGeocoder) {
		g.baseURL = u
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) GeocoderOption {
	return func(g *GoogleGeocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) GeocoderOption {
	return func(g *GoogleGeocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLanguage sets the response language and region bias.
func WithLanguage(language, region string) GeocoderOption {
	return func(g *GoogleGeocoder) {
		g.language = language
		g.region = region
	}
}

// WithCache stores results in c.
func WithCache(c *Cache) GeocoderOption {
	return func(g *GoogleGeocoder) {
		g.cache = c
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) GeocoderOption {
	return func(g *GoogleGeocoder) {
		g.retry = cfg
	}
}

// GoogleGeocoder geocodes through the Google Geocoding API.
type GoogleGeocoder struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	language   string
	region     string
	limiter    *rate.Limiter
	cache      *Cache
	retry      resilience.RetryConfig
}

// NewGoogleGeocoder creates a geocoder for apiKey.
func NewGoogleGeocoder(apiKey string, opts ...GeocoderOption) *GoogleGeocoder {
	g := &GoogleGeocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		baseURL:    googleGeocodeURL,
		language:   "iw",
		region:     "il",
		limiter:    rate.NewLimiter(10, 10),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.retry.OnRetry == nil {
		g.retry.OnRetry = resilience.RetryLogger("location.geocode", "google")
	}
	return g
}

// Geocode looks address up, consulting the cache first. Unmatched
// addresses return a result with Matched false.
func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (*GeocodeResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return &GeocodeResult{}, nil
	}
	if g.apiKey == "" {
		return nil, eris.New("location: google api key not configured")
	}

	if g.cache != nil {
		if r, ok, err := g.cache.Get(ctx, address); err != nil {
			zap.L().Warn("geocode cache read failed", zap.Error(err))
		} else if ok {
			return r, nil
		}
	}

	r, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*GeocodeResult, error) {
		return g.geocodeOnce(ctx, address)
	})
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if err := g.cache.Put(ctx, address, r); err != nil {
			zap.L().Warn("geocode cache write failed", zap.Error(err))
		}
	}
	return r, nil
}

func (g *GoogleGeocoder) geocodeOnce(ctx context.Context, address string) (*GeocodeResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "location: google rate limit")
	}

	params := url.Values{
		"address":  {address},
		"key":      {g.apiKey},
		"language": {g.language},
		"region":   {g.region},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "location: google build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "location: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("location: google returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "location: google read body")
	}

	var gr googleGeocodeResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, eris.Wrap(err, "location: google parse response")
	}

	switch gr.Status {
	case "OK":
	case "ZERO_RESULTS":
		return &GeocodeResult{}, nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return nil, resilience.NewTransientError(
			eris.Errorf("location: google status %s", gr.Status), http.StatusTooManyRequests)
	default:
		return nil, eris.Errorf("location: google status %s: %s", gr.Status, gr.ErrorMessage)
	}
	if len(gr.Results) == 0 {
		return &GeocodeResult{}, nil
	}

	res := gr.Results[0]
	out := &GeocodeResult{
		Lat:              res.Geometry.Location.Lat,
		Lng:              res.Geometry.Location.Lng,
		FormattedAddress: res.FormattedAddress,
		LocationType:     strings.ToLower(res.Geometry.LocationType),
		Matched:          true,
	}
	for _, c := range res.AddressComponents {
		for _, typ := range c.Types {
			switch typ {
			case "route":
				out.Street = c.LongName
			case "locality":
				out.City = c.LongName
			case "administrative_area_level_2":
				out.District = c.LongName
			case "administrative_area_level_1":
				out.Region = c.LongName
			}
		}
	}
	return out, nil
}
