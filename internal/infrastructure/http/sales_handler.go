package http

import (
	"errors"
	"net/http"

	"eventsync/internal/application/sales"
	"eventsync/internal/domain/inventory"
	"eventsync/internal/infrastructure/stockstore"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SalesHandler struct {
	service *sales.Service
}

func NewSalesHandler(s *sales.Service) *SalesHandler {
	return &SalesHandler{
		service: s,
	}
}

func (h *SalesHandler) Register(r gin.IRouter) {
	r.POST("/sales", h.CompleteSale)
	r.GET("/availability/:tenant_id/:shop_id", h.GetAvailability)
}

func (h *SalesHandler) CompleteSale(c *gin.Context) {
	var req sales.CompleteSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.TenantID == uuid.Nil || req.ShopID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id and shop_id are required"})
		return
	}

	env, err := h.service.CompleteSale(c.Request.Context(), req)
	switch {
	case errors.Is(err, sales.ErrEmptySale):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, inventory.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"event_id": env.EventID, "key": env.Key})
}

func (h *SalesHandler) GetAvailability(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenant_id")
	if !ok {
		return
	}
	shopID, ok := uuidParam(c, "shop_id")
	if !ok {
		return
	}

	stock, err := h.service.Availability(c.Request.Context(), tenantID, shopID)
	if errors.Is(err, stockstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no availability recorded for shop"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newStockResponse(stock))
}
