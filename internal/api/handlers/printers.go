package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/printworks/relay/internal/db"
)

type CreatePrinterRequest struct {
	Name          string `json:"name" binding:"required"`
	Address       string `json:"address" binding:"required"`
	Port          int    `json:"port"`
	Media         string `json:"media" binding:"required"`
	ColorCapable  bool   `json:"color_capable"`
	DuplexCapable bool   `json:"duplex_capable"`
}

type UpdatePrinterRequest struct {
	Address       string `json:"address"`
	Port          int    `json:"port"`
	Media         string `json:"media"`
	ColorCapable  *bool  `json:"color_capable"`
	DuplexCapable *bool  `json:"duplex_capable"`
}

type PrinterHandler struct{}

func NewPrinterHandler() *PrinterHandler {
	return &PrinterHandler{}
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	printers, err := db.Printers.ListPrinters(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve printers",
		})
		return
	}

	c.JSON(http.StatusOK, printers)
}

func (h *PrinterHandler) GetPrinter(c *gin.Context) {
	p, err := db.Printers.GetPrinterByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Printer not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve printer",
		})
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *PrinterHandler) CreatePrinter(c *gin.Context) {
	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	if _, err := db.Printers.GetPrinterByName(ctx, req.Name); err == nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "duplicate_name",
			Message: "Printer with this name already exists",
		})
		return
	}

	port := req.Port
	if port == 0 {
		port = 9100
	}

	p := &db.Printer{
		Name:          req.Name,
		Address:       req.Address,
		Port:          port,
		Media:         req.Media,
		ColorCapable:  req.ColorCapable,
		DuplexCapable: req.DuplexCapable,
		Status:        "unknown",
	}
	if err := db.Printers.CreatePrinter(ctx, p); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to create printer",
		})
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (h *PrinterHandler) UpdatePrinter(c *gin.Context) {
	var req UpdatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	p, err := db.Printers.GetPrinterByName(ctx, c.Param("name"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Printer not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve printer",
		})
		return
	}

	if req.Address != "" {
		p.Address = req.Address
	}
	if req.Port != 0 {
		p.Port = req.Port
	}
	if req.Media != "" {
		p.Media = req.Media
	}
	if req.ColorCapable != nil {
		p.ColorCapable = *req.ColorCapable
	}
	if req.DuplexCapable != nil {
		p.DuplexCapable = *req.DuplexCapable
	}

	if err := db.Printers.UpdatePrinter(ctx, p); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update printer",
		})
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *PrinterHandler) DeletePrinter(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")

	if _, err := db.Printers.GetPrinterByName(ctx, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Printer not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve printer",
		})
		return
	}

	if err := db.Printers.DeletePrinter(ctx, name); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to delete printer",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
