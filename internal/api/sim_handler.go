package api

import (
	"context"

	"fabrika/internal/model"
	"fabrika/internal/repository"
	"fabrika/internal/sim"

	"github.com/gin-gonic/gin"
)

// Simulation is the engine surface the handlers consume.
type Simulation interface {
	AdvanceDay(ctx context.Context) sim.DayReport
	CurrentDay() int
	Running() bool
	Operating() bool
}

type SimHandler struct {
	engine   Simulation
	orders   repository.OrderInterface
	balances repository.BalanceInterface
}

func NewSimHandler(engine Simulation, orders repository.OrderInterface, balances repository.BalanceInterface) *SimHandler {
	return &SimHandler{engine: engine, orders: orders, balances: balances}
}

// AdvanceDay is the external "advance day" trigger. It blocks until the tick
// completes, listeners included.
func (h *SimHandler) AdvanceDay(c *gin.Context) {
	report := h.engine.AdvanceDay(c.Request.Context())
	c.JSON(200, report)
}

func (h *SimHandler) Status(c *gin.Context) {
	var lastBalance *model.BalanceSnapshot
	if snapshot, err := h.balances.Latest(c.Request.Context()); err == nil {
		lastBalance = snapshot
	}
	c.JSON(200, gin.H{
		"day":          h.engine.CurrentDay(),
		"running":      h.engine.Running(),
		"operating":    h.engine.Operating(),
		"last_balance": lastBalance,
	})
}

func (h *SimHandler) ListOrders(c *gin.Context) {
	status := c.Query("status")
	var (
		orders []model.Order
		err    error
	)
	if status != "" {
		orders, err = h.orders.ListByStatus(c.Request.Context(), status, 100)
	} else {
		orders, err = h.orders.ListRecent(c.Request.Context(), 100)
	}
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"data": orders})
}

func (h *SimHandler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
