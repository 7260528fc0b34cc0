package supplier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Material is one line of a supplier's catalog.
type Material struct {
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	PricePerUnit int64  `json:"price_per_unit"`
}

// Remittance is where a supplier gets paid.
type Remittance struct {
	Account string
	BankID  string
}

// Capability abstracts one supplier's "list what you sell" operation.
type Capability interface {
	Name() string
	Remittance() Remittance
	AvailableMaterials(ctx context.Context) ([]Material, error)
}

type httpCapability struct {
	name       string
	url        string
	remittance Remittance
	httpClient *http.Client
}

func NewHTTPCapability(name, url string, remittance Remittance, timeout time.Duration) Capability {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpCapability{
		name:       name,
		url:        url,
		remittance: remittance,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *httpCapability) Name() string           { return c.name }
func (c *httpCapability) Remittance() Remittance { return c.remittance }

func (c *httpCapability) AvailableMaterials(ctx context.Context) ([]Material, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/materials", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supplier %s: status %d", c.name, resp.StatusCode)
	}
	var out struct {
		Materials []Material `json:"materials"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("supplier %s: decode: %w", c.name, err)
	}
	return out.Materials, nil
}
