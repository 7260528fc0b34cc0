package sim

import (
	"context"

	"fabrika/internal/retry"
	"fabrika/internal/supplier"
	"fabrika/pkg/logger"

	"go.uber.org/zap"
)

// StartupPlan is one machine model plus the cheapest sourcing of its
// required material bundle.
type StartupPlan struct {
	Machine   supplier.MachineQuote
	Materials map[string]*supplier.Sourced
	TotalCost int64
}

// selectStartupPlan enumerates every feasible machine+materials combination
// and keeps the minimum total cost. Strict < comparison means ties keep the
// first-seen plan; quote order is the market's order, which is deterministic
// per configuration.
func (e *Engine) selectStartupPlan(ctx context.Context) (*StartupPlan, error) {
	quotes, err := retry.Do(ctx, e.opts.RetryAttempts, e.opts.RetryDelay, func(ctx context.Context) ([]supplier.MachineQuote, error) {
		return e.market.AvailableMachines(ctx)
	})
	if err != nil {
		return nil, err
	}

	var best *StartupPlan
	for _, quote := range quotes {
		plan, ok := e.pricePlan(ctx, quote)
		if !ok {
			logger.Debug("startup plan infeasible, skipping", zap.String("machine", quote.Model))
			continue
		}
		if best == nil || plan.TotalCost < best.TotalCost {
			best = plan
		}
	}
	if best == nil {
		return nil, errNoFeasiblePlan
	}
	return best, nil
}

// pricePlan costs one machine plus its material bundle via sourcing. A
// bundle with any unsourceable material makes the whole plan infeasible.
func (e *Engine) pricePlan(ctx context.Context, quote supplier.MachineQuote) (*StartupPlan, bool) {
	plan := &StartupPlan{
		Machine:   quote,
		Materials: make(map[string]*supplier.Sourced, len(quote.RequiredMaterials)),
		TotalCost: quote.Cost,
	}
	for material, units := range quote.RequiredMaterials {
		sourced, err := e.sourcer.FindBestSupplier(ctx, material)
		if err != nil {
			return nil, false
		}
		if sourced == nil {
			return nil, false
		}
		plan.Materials[material] = sourced
		plan.TotalCost += int64(units) * sourced.Quote.PricePerUnit
	}
	return plan, true
}
