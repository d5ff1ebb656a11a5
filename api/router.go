package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos_ledger/internal/register"
)

// InitRoutes binds every register endpoint on the given Gin engine.
func InitRoutes(e *gin.Engine, r *register.Register, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewRegisterHandler(r, logger)

	e.POST("/sales", h.handleCreateSale)
	e.GET("/sales", h.handleGetSales)
	e.GET("/sales/:id", h.handleGetSale)
	e.POST("/sales/:id/cancel", h.handleCancelSale)
	e.POST("/sales/cancel-last", h.handleCancelLastSale)

	e.GET("/vendors", h.handleGetVendors)
	e.POST("/vendors", h.handleCreateVendor)

	e.GET("/session", h.handleGetSession)
	e.POST("/session/open", h.handleOpenSession)
	e.POST("/session/close", h.handleCloseSession)
	e.PATCH("/session/event", h.handleUpdateSessionEvent)

	e.GET("/totals", h.handleGetTotals)
	e.GET("/pending-payments", h.handleGetPendingPayments)
	e.DELETE("/pending-payments", h.handleClearPendingPayments)

	e.GET("/workflow", h.handleGetWorkflow)
	e.POST("/workflow/viewed", h.acknowledge(r.AcknowledgeViewed))
	e.POST("/workflow/printed", h.acknowledge(r.AcknowledgePrinted))
	e.POST("/workflow/email-sent", h.acknowledge(r.AcknowledgeEmailSent))
	e.POST("/reset", h.handleReset)

	e.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
}
