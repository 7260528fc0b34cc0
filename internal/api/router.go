package api

import (
	"fabrika/internal/metrics"
	"fabrika/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(simHandler *SimHandler, authHandler *AuthHandler, jwtSecret []byte) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
	)
	r.SetTrustedProxies(nil)

	// Public
	r.GET("/health", simHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/v1/auth/login", authHandler.Login)

	// Read-only simulation state
	r.GET("/v1/sim/status", simHandler.Status)
	r.GET("/v1/orders", simHandler.ListOrders)

	// The day trigger mutates the world; operators only.
	protected := r.Group("/v1")
	protected.Use(middleware.JWTMiddleware(jwtSecret))
	{
		protected.POST("/sim/advance", simHandler.AdvanceDay)
	}
	return r
}
