package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
)

const ipAPIFields = "status,message,country,countryCode,city,lat,lon"

// HTTPProvider queries an ip-api.com compatible JSON endpoint.
type HTTPProvider struct {
	client  *http.Client
	baseURL string
}

type ipAPIResponse struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Country     string   `json:"country"`
	CountryCode string   `json:"countryCode"`
	City        string   `json:"city"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
}

func NewHTTPProvider(client *http.Client, baseURL string) *HTTPProvider {
	return &HTTPProvider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *HTTPProvider) Lookup(ctx context.Context, ip netip.Addr) (Location, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=%s", p.baseURL, url.PathEscape(ip.String()), ipAPIFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, fmt.Errorf("geo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo request failed with status %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("failed to decode geo response: %w", err)
	}
	if body.Status != "success" {
		if body.Message != "" {
			return Location{}, fmt.Errorf("geo lookup %s: %s", body.Status, body.Message)
		}
		return Location{}, ErrNotFound
	}

	return Location{
		Country:     strPtr(body.Country),
		CountryCode: strPtr(body.CountryCode),
		City:        strPtr(body.City),
		Lat:         body.Lat,
		Lon:         body.Lon,
	}, nil
}
