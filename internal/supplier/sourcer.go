package supplier

import (
	"context"
	"strings"

	"fabrika/pkg/logger"

	"go.uber.org/zap"
)

// Sourced is the ephemeral result of one sourcing call.
type Sourced struct {
	SupplierName string
	Capability   Capability
	Quote        Material
}

// Sourcer finds the cheapest supplier for a material across all configured
// capabilities. Partial failure is the steady state: a supplier that errors
// or returns nothing is skipped, never aborts the search.
type Sourcer struct {
	capabilities []Capability
}

func NewSourcer(capabilities []Capability) *Sourcer {
	return &Sourcer{capabilities: capabilities}
}

// FindBestSupplier returns the supplier with the lowest price per unit for
// the named material (case-insensitive, quantity > 0), or nil when nobody
// stocks it. Strict < comparison keeps the first-seen candidate on ties.
func (s *Sourcer) FindBestSupplier(ctx context.Context, material string) (*Sourced, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var best *Sourced
	for _, capability := range s.capabilities {
		materials, err := capability.AvailableMaterials(ctx)
		if err != nil {
			logger.Warn("supplier query failed, continuing",
				zap.String("supplier", capability.Name()), zap.Error(err))
			continue
		}
		for _, m := range materials {
			if !strings.EqualFold(m.Name, material) || m.Quantity <= 0 {
				continue
			}
			if best == nil || m.PricePerUnit < best.Quote.PricePerUnit {
				best = &Sourced{SupplierName: capability.Name(), Capability: capability, Quote: m}
			}
		}
	}
	return best, nil
}
