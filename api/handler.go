package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos_ledger/internal/kvstore"
	"pos_ledger/internal/register"
	"pos_ledger/internal/sales"
	"pos_ledger/internal/session"
	"pos_ledger/internal/workflow"
)

// degradedWarning is returned alongside results that were applied in memory
// but reached no storage backend.
const degradedWarning = "change applied but not persisted; it will be lost on restart"

// registerHandler holds the register and implements its HTTP handlers.
type registerHandler struct {
	register *register.Register
	logger   *zap.Logger
}

// NewRegisterHandler creates a new register handler.
func NewRegisterHandler(r *register.Register, logger *zap.Logger) *registerHandler {
	return &registerHandler{
		register: r,
		logger:   logger,
	}
}

// result is the body of every mutating endpoint.
type result struct {
	Data    any    `json:"data"`
	Warning string `json:"warning,omitempty"`
}

// respond writes data with status, or the error mapped to its status. A
// degraded persistence error is not a failure.
func (h *registerHandler) respond(ctx *gin.Context, status int, data any, err error) {
	if err != nil && !kvstore.IsDegraded(err) {
		h.writeError(ctx, err)
		return
	}
	res := result{Data: data}
	if err != nil {
		h.logger.Warn("persistence degraded", zap.String("path", ctx.FullPath()), zap.Error(err))
		res.Warning = degradedWarning
	}
	ctx.JSON(status, res)
}

func (h *registerHandler) writeError(ctx *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		ctx.JSON(status, gin.H{"error": "internal error"})
		return
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, sales.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sales.ErrInvalidAmount),
		errors.Is(err, sales.ErrEmptyVendorName),
		errors.Is(err, sales.ErrInvalidPaymentMethod),
		errors.Is(err, sales.ErrInvalidDeferred),
		errors.Is(err, session.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, sales.ErrVendorExists),
		errors.Is(err, session.ErrAlreadyOpen),
		errors.Is(err, session.ErrNotOpen),
		errors.Is(err, session.ErrEventLocked),
		errors.Is(err, workflow.ErrGuardViolation):
		return http.StatusConflict
	case errors.Is(err, session.ErrTooEarly):
		return http.StatusTooEarly
	default:
		return http.StatusInternalServerError
	}
}

// bindOptionalJSON binds the body into dst; an empty body leaves dst as is.
func bindOptionalJSON(ctx *gin.Context, dst any) error {
	err := ctx.ShouldBindJSON(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *registerHandler) badRequest(ctx *gin.Context, err error) {
	h.logger.Warn("failed to bind request", zap.String("path", ctx.FullPath()), zap.Error(err))
	ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
}

// Sales.

// handleCreateSale handles the POST /sales endpoint.
func (h *registerHandler) handleCreateSale(ctx *gin.Context) {
	var req sales.NewSale
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.badRequest(ctx, err)
		return
	}
	sale, err := h.register.CreateSale(ctx.Request.Context(), req)
	h.respond(ctx, http.StatusCreated, sale, err)
}

// handleGetSales handles GET /sales?from=&to=&vendor_id=&method=&active=.
func (h *registerHandler) handleGetSales(ctx *gin.Context) {
	var q struct {
		From     time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
		To       time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
		VendorID string    `form:"vendor_id"`
		Method   string    `form:"method"`
		Active   bool      `form:"active"`
	}
	if err := ctx.ShouldBindQuery(&q); err != nil {
		h.badRequest(ctx, err)
		return
	}
	f := register.SaleFilter{From: q.From, To: q.To, VendorID: q.VendorID, ActiveOnly: q.Active}
	if q.Method != "" {
		m, err := sales.ParsePaymentMethod(q.Method)
		if err != nil {
			h.writeError(ctx, err)
			return
		}
		f.Method = m
	}

	results := h.register.Sales(ctx.Request.Context(), f)
	ctx.JSON(http.StatusOK, gin.H{"results": results, "metadata": gin.H{"count": len(results)}})
}

func (h *registerHandler) handleGetSale(ctx *gin.Context) {
	sale, err := h.register.Sale(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, sale)
}

func (h *registerHandler) handleCancelSale(ctx *gin.Context) {
	canceled, err := h.register.CancelSale(ctx.Request.Context(), ctx.Param("id"))
	h.respond(ctx, http.StatusOK, gin.H{"canceled": canceled}, err)
}

func (h *registerHandler) handleCancelLastSale(ctx *gin.Context) {
	canceled, err := h.register.CancelLastSale(ctx.Request.Context())
	h.respond(ctx, http.StatusOK, gin.H{"canceled": canceled}, err)
}

// Vendors.

func (h *registerHandler) handleGetVendors(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.register.Vendors(ctx.Request.Context()))
}

func (h *registerHandler) handleCreateVendor(ctx *gin.Context) {
	var req register.VendorSeed
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.badRequest(ctx, err)
		return
	}
	vendor, err := h.register.RegisterVendor(ctx.Request.Context(), req.Name, req.Color)
	h.respond(ctx, http.StatusCreated, vendor, err)
}

// Session.

func (h *registerHandler) handleOpenSession(ctx *gin.Context) {
	var req session.OpenParams
	if err := bindOptionalJSON(ctx, &req); err != nil {
		h.badRequest(ctx, err)
		return
	}
	s, err := h.register.OpenSession(ctx.Request.Context(), req)
	h.respond(ctx, http.StatusCreated, s, err)
}

func (h *registerHandler) handleCloseSession(ctx *gin.Context) {
	s, err := h.register.CloseSession(ctx.Request.Context())
	h.respond(ctx, http.StatusOK, s, err)
}

func (h *registerHandler) handleUpdateSessionEvent(ctx *gin.Context) {
	var req session.EventUpdate
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.badRequest(ctx, err)
		return
	}
	s, err := h.register.UpdateSessionEvent(ctx.Request.Context(), req)
	h.respond(ctx, http.StatusOK, s, err)
}

// handleGetSession returns the open session, if any, and the last one.
func (h *registerHandler) handleGetSession(ctx *gin.Context) {
	res := gin.H{"current": nil, "last": nil}
	if cur, ok := h.register.CurrentSession(ctx.Request.Context()); ok {
		res["current"] = cur
	}
	if last, ok := h.register.LastSession(ctx.Request.Context()); ok {
		res["last"] = last
	}
	ctx.JSON(http.StatusOK, res)
}

// Reporting.

func (h *registerHandler) handleGetTotals(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.register.Totals(ctx.Request.Context()))
}

func (h *registerHandler) handleGetPendingPayments(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.register.PendingPayments(ctx.Request.Context()))
}

func (h *registerHandler) handleClearPendingPayments(ctx *gin.Context) {
	err := h.register.ClearPendingPayments(ctx.Request.Context())
	h.respond(ctx, http.StatusOK, gin.H{"cleared": true}, err)
}

// Workflow.

func (h *registerHandler) handleGetWorkflow(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.register.WorkflowState())
}

func (h *registerHandler) acknowledge(step func() (workflow.State, error)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		st, err := step()
		if err != nil {
			ctx.JSON(statusOf(err), gin.H{"error": err.Error(), "state": st})
			return
		}
		ctx.JSON(http.StatusOK, st)
	}
}

func (h *registerHandler) handleReset(ctx *gin.Context) {
	err := h.register.ExecuteReset(ctx.Request.Context())
	if err != nil && !kvstore.IsDegraded(err) {
		var gv *workflow.GuardViolationError
		if errors.As(err, &gv) {
			ctx.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": h.register.WorkflowState()})
			return
		}
		h.writeError(ctx, err)
		return
	}
	h.respond(ctx, http.StatusOK, h.register.WorkflowState(), err)
}
