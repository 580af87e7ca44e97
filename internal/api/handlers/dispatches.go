package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/printworks/relay/internal/db"
	"github.com/printworks/relay/internal/dispatch"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type DispatchHandler struct{}

func NewDispatchHandler() *DispatchHandler {
	return &DispatchHandler{}
}

func (h *DispatchHandler) ListDispatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := db.Dispatches.List(c.Request.Context(), db.DispatchFilter{
		Account: c.Query("account"),
		Status:  c.Query("status"),
		Mode:    c.Query("mode"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve dispatch records",
		})
		return
	}

	c.JSON(http.StatusOK, records)
}

func (h *DispatchHandler) GetDispatch(c *gin.Context) {
	record, err := db.Dispatches.GetByCorrelation(c.Request.Context(), c.Param("correlation"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Dispatch record not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve dispatch record",
		})
		return
	}

	txCount, err := db.Transactions.CountByDispatch(c.Request.Context(), record.Correlation)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to count dispatch transactions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": record, "transaction_count": txCount})
}

func (h *DispatchHandler) ListDispatchTransactions(c *gin.Context) {
	txns, err := db.Transactions.ListByDispatch(c.Request.Context(), c.Param("correlation"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve transactions",
		})
		return
	}

	c.JSON(http.StatusOK, txns)
}

// ReleaseDispatch marks a held ticket as released; the next completion sweep
// finalizes it and reports the outcome upstream.
func (h *DispatchHandler) ReleaseDispatch(c *gin.Context) {
	h.transitionHeld(c, dispatch.StatusPendingComplete, "released")
}

// CancelDispatch marks a held ticket for cancellation; the next completion
// sweep refunds the upfront charge and reports it.
func (h *DispatchHandler) CancelDispatch(c *gin.Context) {
	h.transitionHeld(c, dispatch.StatusPendingCancel, "cancelled")
}

func (h *DispatchHandler) transitionHeld(c *gin.Context, target, action string) {
	ctx := c.Request.Context()
	correlation := c.Param("correlation")

	record, err := db.Dispatches.GetByCorrelation(ctx, correlation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Dispatch record not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve dispatch record",
		})
		return
	}

	if record.Status != dispatch.StatusHeld {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "invalid_state",
			Message: "Only held tickets can be " + action,
		})
		return
	}

	if err := db.Dispatches.UpdateStatus(ctx, correlation, target); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update dispatch record",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": target})
}
