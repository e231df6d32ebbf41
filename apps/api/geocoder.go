package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultOpenMeteoGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	defaultNominatimSearchURL    = "https://nominatim.openstreetmap.org/search"
)

// GeocodeResult is a place resolved from a free-text name.
type GeocodeResult struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
	Admin1    string  `json:"admin1,omitempty"`
}

// Geocoder resolves a place name. A nil result with a nil error means the
// name is unknown to the provider.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (*GeocodeResult, error)
}

// OpenMeteoGeocoder implements Geocoder using the Open-Meteo geocoding API.
type OpenMeteoGeocoder struct {
	BaseURL string
	Client  *http.Client
}

func (g *OpenMeteoGeocoder) Geocode(ctx context.Context, name string) (*GeocodeResult, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("count", "1")
	q.Set("language", "en")
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var data struct {
		Results []struct {
			Name      string  `json:"name"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Country   string  `json:"country"`
			Admin1    string  `json:"admin1"`
		} `json:"results"`
	}
	if err := doJSON(g.Client, req, &data); err != nil {
		return nil, fmt.Errorf("open-meteo geocoding: %w", err)
	}
	if len(data.Results) == 0 {
		return nil, nil
	}

	first := data.Results[0]
	return &GeocodeResult{
		Name:      first.Name,
		Latitude:  first.Latitude,
		Longitude: first.Longitude,
		Country:   first.Country,
		Admin1:    first.Admin1,
	}, nil
}

// NominatimGeocoder implements Geocoder using OSM Nominatim search.
// CAUTION: Requires User-Agent and has strict rate limits (1 req/sec)
type NominatimGeocoder struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
	mu        sync.Mutex
	lastCall  time.Time
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, name string) (*GeocodeResult, error) {
	g.mu.Lock()
	elapsed := time.Since(g.lastCall)
	if elapsed < time.Second {
		time.Sleep(time.Second - elapsed)
	}
	g.lastCall = time.Now()
	g.mu.Unlock()

	q := url.Values{}
	q.Set("q", name)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	q.Set("addressdetails", "1")
	q.Set("accept-language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.UserAgent)

	var data []struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		Address     struct {
			Country string `json:"country"`
			State   string `json:"state"`
		} `json:"address"`
	}
	if err := doJSON(g.Client, req, &data); err != nil {
		return nil, fmt.Errorf("nominatim: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	first := data[0]
	lat, err := strconv.ParseFloat(first.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim: invalid latitude %q", first.Lat)
	}
	lon, err := strconv.ParseFloat(first.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim: invalid longitude %q", first.Lon)
	}
	placeName := first.Name
	if placeName == "" {
		placeName = strings.TrimSpace(strings.SplitN(first.DisplayName, ",", 2)[0])
	}
	return &GeocodeResult{
		Name:      placeName,
		Latitude:  lat,
		Longitude: lon,
		Country:   first.Address.Country,
		Admin1:    first.Address.State,
	}, nil
}

// FallbackGeocoder prioritizes first, falls back to second
type FallbackGeocoder struct {
	Primary   Geocoder
	Secondary Geocoder
}

func (g *FallbackGeocoder) Geocode(ctx context.Context, name string) (*GeocodeResult, error) {
	res, err := g.Primary.Geocode(ctx, name)
	if err != nil || res == nil {
		return g.Secondary.Geocode(ctx, name)
	}
	return res, nil
}

// doJSON performs req and decodes a successful JSON response into dst.
func doJSON(client *http.Client, req *http.Request, dst any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status=%d body=%q", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
