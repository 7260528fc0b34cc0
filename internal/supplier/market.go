package supplier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MachineQuote is one machine model on offer, with the material bundle a
// startup plan would need to feed it.
type MachineQuote struct {
	Model             string         `json:"model"`
	Cost              int64          `json:"cost"`
	OutputPerDay      int            `json:"output_per_day"`
	RequiredMaterials map[string]int `json:"required_materials"`
}

// MachineMarket lists machines available for purchase.
type MachineMarket interface {
	AvailableMachines(ctx context.Context) ([]MachineQuote, error)
}

type httpMachineMarket struct {
	url        string
	httpClient *http.Client
}

func NewHTTPMachineMarket(url string, timeout time.Duration) MachineMarket {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpMachineMarket{url: url, httpClient: &http.Client{Timeout: timeout}}
}

func (m *httpMachineMarket) AvailableMachines(ctx context.Context) ([]MachineQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url+"/machines", nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("machine market: status %d", resp.StatusCode)
	}
	var out struct {
		Machines []MachineQuote `json:"machines"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("machine market: decode: %w", err)
	}
	return out.Machines, nil
}
