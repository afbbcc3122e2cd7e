package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient talks to the control plane's compute API over JSON.
type HTTPClient struct {
	baseURL    string
	token      string
	cache      *FlavorCache
	httpClient *http.Client
}

type serversResponse struct {
	Servers []InventoryItem `json:"servers"`
}

type serverResponse struct {
	Server InventoryItem `json:"server"`
}

type flavorResponse struct {
	Flavor Flavor `json:"flavor"`
}

// NewHTTPClient creates a control-plane client. Flavor definitions change
// rarely, so lookups are cached for an hour.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		cache:   NewFlavorCache(1 * time.Hour),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPClient) ListInventory(ctx context.Context) ([]InventoryItem, error) {
	var resp serversResponse
	if err := c.getJSON(ctx, "/servers/detail", &resp); err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	return resp.Servers, nil
}

func (c *HTTPClient) GetItem(ctx context.Context, externalID string) (*InventoryItem, error) {
	var resp serverResponse
	if err := c.getJSON(ctx, "/servers/"+externalID, &resp); err != nil {
		return nil, err
	}
	return &resp.Server, nil
}

func (c *HTTPClient) GetSpec(ctx context.Context, flavorID string) (*Flavor, error) {
	if cached := c.cache.Get(flavorID); cached != nil {
		return cached, nil
	}

	var resp flavorResponse
	if err := c.getJSON(ctx, "/flavors/"+flavorID, &resp); err != nil {
		return nil, err
	}

	c.cache.Set(flavorID, &resp.Flavor)
	return &resp.Flavor, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cloud API returned status %d for %s", resp.StatusCode, path)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
