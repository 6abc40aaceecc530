package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	stockapp "github.com/ryu-qqq/setof-commerce-sub022/internal/application/stock"
	"go.uber.org/zap"
)

// StockService is the stock administration use case as seen by HTTP
type StockService interface {
	CreateStock(ctx context.Context, productID, initial int64) (*stockapp.StockResponse, error)
	SetStockQuantity(ctx context.Context, productID, quantity int64) (*stockapp.StockResponse, error)
	GetStock(ctx context.Context, productID int64) (*stockapp.StockResponse, error)
	GetAvailability(ctx context.Context, productID int64) (*stockapp.AvailabilityResponse, error)
}

// StockHandler handles stock endpoints
type StockHandler struct {
	BaseHandler
	service StockService
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(service StockService, log *zap.Logger) *StockHandler {
	return &StockHandler{
		BaseHandler: BaseHandler{logger: log},
		service:     service,
	}
}

// RegisterRoutes implements router.RouteRegistrar
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/stocks")
	g.POST("", h.Create)
	g.GET("/:productId", h.Get)
	g.PUT("/:productId", h.Set)
	g.GET("/:productId/availability", h.Availability)
}

// Create stocks a product for the first time
func (h *StockHandler) Create(c *gin.Context) {
	var req CreateStockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	result, err := h.service.CreateStock(c.Request.Context(), req.ProductID, req.Quantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Get returns the stock row of a product
func (h *StockHandler) Get(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}
	result, err := h.service.GetStock(c.Request.Context(), productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Set corrects the on-hand quantity of a product
func (h *StockHandler) Set(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}
	var req SetStockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	result, err := h.service.SetStockQuantity(c.Request.Context(), productID, req.Quantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Availability reads the available quantity, possibly from the counter
func (h *StockHandler) Availability(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}
	result, err := h.service.GetAvailability(c.Request.Context(), productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

func (h *StockHandler) productID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil || id <= 0 {
		h.BadRequest(c, "Invalid product ID")
		return 0, false
	}
	return id, true
}
