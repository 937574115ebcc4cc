package http

import (
	"example.com/fdms/services/admin/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func SetupRoutes(router *gin.Engine, handlers *Handlers, auth *core.AuthService, logger *logrus.Logger) {
	// Global middleware
	router.Use(Logger(logger))
	router.Use(CORS())

	// Health check (public)
	router.GET("/health", handlers.Health)

	api := router.Group("/api/admin")

	// Authentication (public)
	api.POST("/login", handlers.Login)

	// Everything else requires a valid, non-expired session
	authed := api.Group("")
	authed.Use(BearerAuth(auth))
	{
		authed.GET("/stats", handlers.GetStats)

		// Companies
		authed.GET("/companies", handlers.ListCompanies)
		authed.POST("/companies", handlers.CreateCompany)
		authed.GET("/companies/:id", handlers.GetCompany)
		authed.PUT("/companies/:id", handlers.UpdateCompany)
		authed.PATCH("/companies/:id/status", handlers.SetCompanyStatus)
		authed.GET("/companies/:id/devices", handlers.ListCompanyDevices)

		// Devices
		authed.GET("/devices", handlers.ListDevices)
		authed.POST("/devices", handlers.ProvisionDevice)
		authed.PATCH("/devices/:device_id/status", handlers.SetDeviceStatus)
		authed.PATCH("/devices/:device_id/mode", handlers.SetDeviceMode)

		// Cross-tenant views
		authed.GET("/fiscal-days", handlers.ListFiscalDays)
		authed.GET("/receipts", handlers.ListReceipts)
		authed.GET("/audit", handlers.ListAuditLogs)
	}
}
