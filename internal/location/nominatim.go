package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultNominatimURL is the public OpenStreetMap reverse geocoding service.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimGeocoder reverse geocodes through a Nominatim instance.
type NominatimGeocoder struct {
	baseURL    string
	userAgent  string
	language   string
	httpClient *http.Client
}

// NewNominatimGeocoder creates a client. Nominatim's usage policy requires
// an identifying user agent.
func NewNominatimGeocoder(baseURL, userAgent, language string, timeout time.Duration) *NominatimGeocoder {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NominatimGeocoder{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  userAgent,
		language:   language,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type nominatimResponse struct {
	Error   string `json:"error"`
	Address struct {
		Road         string `json:"road"`
		Pedestrian   string `json:"pedestrian"`
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		State        string `json:"state"`
		Region       string `json:"region"`
	} `json:"address"`
}

func (g *NominatimGeocoder) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 7, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 7, 64))
	q.Set("addressdetails", "1")
	q.Set("zoom", "18")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode request: %w", err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	if g.language != "" {
		req.Header.Set("Accept-Language", g.language)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeocodeRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrGeocodeRequest, resp.StatusCode, string(body))
	}

	var result nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if result.Error != "" {
		return nil, nil
	}

	a := result.Address
	addr := &Address{
		Street: firstNonEmpty(a.Road, a.Pedestrian),
		City:   firstNonEmpty(a.City, a.Town, a.Village, a.Municipality),
		Region: firstNonEmpty(a.State, a.Region),
	}
	if *addr == (Address{}) {
		return nil, nil
	}
	return addr, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
