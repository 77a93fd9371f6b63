package http

import (
	"errors"
	"net/http"

	"eventsync/internal/application/inventory"
	domain "eventsync/internal/domain/inventory"
	"eventsync/internal/infrastructure/stockstore"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type StockHandler struct {
	service *inventory.Service
}

func NewStockHandler(s *inventory.Service) *StockHandler {
	return &StockHandler{
		service: s,
	}
}

func (h *StockHandler) Register(r gin.IRouter) {
	r.GET("/stock/:tenant_id/:shop_id", h.GetStock)
	r.POST("/stock/adjustments", h.AdjustStock)
}

type stockResponse struct {
	TenantID uuid.UUID        `json:"tenant_id"`
	ShopID   uuid.UUID        `json:"shop_id"`
	Version  int              `json:"version"`
	Levels   map[string]int64 `json:"levels"`
}

func newStockResponse(s *domain.ShopStock) stockResponse {
	levels := make(map[string]int64)
	for product, qty := range s.Levels() {
		levels[product.String()] = qty
	}
	return stockResponse{
		TenantID: s.TenantID(),
		ShopID:   s.ShopID(),
		Version:  s.Version(),
		Levels:   levels,
	}
}

func (h *StockHandler) GetStock(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenant_id")
	if !ok {
		return
	}
	shopID, ok := uuidParam(c, "shop_id")
	if !ok {
		return
	}

	stock, err := h.service.Stock(c.Request.Context(), tenantID, shopID)
	if errors.Is(err, stockstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no stock recorded for shop"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newStockResponse(stock))
}

func (h *StockHandler) AdjustStock(c *gin.Context) {
	var req inventory.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.TenantID == uuid.Nil || req.ShopID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id and shop_id are required"})
		return
	}

	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "items are required"})
		return
	}

	env, err := h.service.AdjustStock(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"event_id": env.EventID, "key": env.Key})
}
