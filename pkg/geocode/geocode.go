// Package geocode resolves vehicle coordinates to human-readable addresses
// using the Nominatim (OpenStreetMap) reverse geocoding service.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/uvolabs/owner-command/internal/log"
)

const defaultEndpoint = "https://nominatim.openstreetmap.org/reverse"

// Address is a structured reverse geocoding result. DisplayName is the full
// formatted address; the remaining fields may be empty depending on what the
// service knows about the location.
type Address struct {
	DisplayName string
	Road        string
	HouseNumber string
	City        string
	County      string
	State       string
	Postcode    string
	Country     string
}

// Client looks up addresses for coordinates. Lookups for nearby coordinates
// are cached, and outbound requests are limited to one per second per the
// service's usage policy. Safe for concurrent use.
type Client struct {
	// Email identifies the requester to the service, as its usage policy asks
	// of unattended clients. Optional.
	Email string

	// Endpoint overrides the reverse geocoding URL. Defaults to the public
	// Nominatim instance.
	Endpoint string

	client *http.Client

	cacheMu sync.RWMutex
	cache   map[string]*Address

	requestMu   sync.Mutex
	lastRequest time.Time
}

// NewClient returns a Client using the public Nominatim service.
func NewClient(email string) *Client {
	return &Client{
		Email:  email,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  make(map[string]*Address),
	}
}

const maxCacheEntries = 10000

// Reverse returns the address at the given coordinates. Coordinates are
// cached at roughly 11 meter precision, so a parked vehicle does not trigger
// repeated lookups.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	c.cacheMu.RLock()
	cached, ok := c.cache[key]
	c.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	address, err := c.lookup(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	if len(c.cache) >= maxCacheEntries {
		c.cache = make(map[string]*Address)
	}
	c.cache[key] = address
	c.cacheMu.Unlock()
	return address, nil
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Road        string `json:"road"`
		HouseNumber string `json:"house_number"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		County      string `json:"county"`
		State       string `json:"state"`
		Postcode    string `json:"postcode"`
		Country     string `json:"country"`
	} `json:"address"`
}

func (c *Client) lookup(ctx context.Context, lat, lon float64) (*Address, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	query := url.Values{}
	query.Set("lat", fmt.Sprintf("%.6f", lat))
	query.Set("lon", fmt.Sprintf("%.6f", lon))
	query.Set("format", "json")
	query.Set("addressdetails", "1")
	query.Set("zoom", "18")
	if c.Email != "" {
		query.Set("email", c.Email)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building geocode request: %w", err)
	}
	// The service rejects requests without an identifying User-Agent.
	request.Header.Set("User-Agent", "owner-command/1.0")

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("reverse geocoding: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding service returned status %d", response.StatusCode)
	}

	var result nominatimResponse
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding geocode response: %w", err)
	}

	city := result.Address.City
	if city == "" {
		city = result.Address.Town
	}
	if city == "" {
		city = result.Address.Village
	}
	address := &Address{
		DisplayName: result.DisplayName,
		Road:        result.Address.Road,
		HouseNumber: result.Address.HouseNumber,
		City:        city,
		County:      result.Address.County,
		State:       result.Address.State,
		Postcode:    result.Address.Postcode,
		Country:     result.Address.Country,
	}
	log.Debug("Resolved (%.4f, %.4f) to %q", lat, lon, address.DisplayName)
	return address, nil
}

// throttle enforces the one request per second limit the public service asks
// clients to respect.
func (c *Client) throttle(ctx context.Context) error {
	c.requestMu.Lock()
	defer c.requestMu.Unlock()
	if wait := time.Second - time.Since(c.lastRequest); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.lastRequest = time.Now()
	return nil
}
