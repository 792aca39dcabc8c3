package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler) {
	// Health endpoints (no version prefix)
	router.GET("/health", handler.HealthCheck)
	router.GET("/health/db", handler.HealthDB)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Campaign listing and detail (public read access)
		v1.GET("/campaigns", handler.ListCampaigns)
		v1.GET("/campaigns/:id", handler.GetCampaign)

		// Campaign mutations (caller identity from the wallet header)
		v1.POST("/campaigns", handler.CreateCampaign)
		v1.POST("/campaigns/:id/purchase", handler.Purchase)
		v1.POST("/campaigns/:id/redeem", handler.Redeem)
		v1.POST("/campaigns/:id/pause", handler.SetPaused)

		// Creator views (public read access)
		v1.GET("/creators/:address/campaigns", handler.CreatorCampaigns)
		v1.GET("/creators/:address/stats", handler.CreatorStats)

		// Holder voucher ledger (caller identity from the wallet header)
		v1.GET("/vouchers", handler.MyVouchers)
	}
}
