package handler

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	checkoutapp "github.com/ryu-qqq/setof-commerce-sub022/internal/application/checkout"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/checkout"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/interfaces/http/dto"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// CheckoutService is the checkout use case as seen by HTTP
type CheckoutService interface {
	CreateCheckout(ctx context.Context, cmd checkoutapp.CreateCheckoutCommand) (*checkout.Checkout, error)
	CompleteCheckout(ctx context.Context, cmd checkoutapp.CompleteCheckoutCommand) (*checkout.Checkout, error)
	CancelCheckout(ctx context.Context, checkoutID uuid.UUID, reason checkout.CancelReason) (*checkout.Checkout, error)
	GetCheckout(ctx context.Context, checkoutID uuid.UUID) (*checkout.Checkout, error)
}

// CheckoutHandler handles checkout endpoints
type CheckoutHandler struct {
	BaseHandler
	service CheckoutService
}

// NewCheckoutHandler creates a new CheckoutHandler
func NewCheckoutHandler(service CheckoutService, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		BaseHandler: BaseHandler{logger: log},
		service:     service,
	}
}

// RegisterRoutes implements router.RouteRegistrar
func (h *CheckoutHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/checkouts")
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.POST("/:id/complete", h.Complete)
	g.POST("/:id/cancel", h.Cancel)
}

// Create creates a checkout and reserves its stock. The Idempotency-Key
// header is required.
func (h *CheckoutHandler) Create(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if key == "" {
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeIdempotencyKeyRequired), dto.ErrCodeIdempotencyKeyRequired,
			"Idempotency-Key header is required")
		return
	}

	var req CreateCheckoutRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cmd := checkoutapp.CreateCheckoutCommand{
		IdempotencyKey: key,
		MemberID:       req.MemberID,
		Items:          make([]checkoutapp.CreateCheckoutItem, len(req.Items)),
	}
	for i, it := range req.Items {
		cmd.Items[i] = checkoutapp.CreateCheckoutItem{
			ProductStockID: it.ProductStockID,
			ProductID:      it.ProductID,
			SellerID:       it.SellerID,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			Currency:       strings.ToUpper(it.Currency),
		}
	}

	result, err := h.service.CreateCheckout(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, checkoutapp.ToCheckoutResponse(result))
}

// Get returns one checkout
func (h *CheckoutHandler) Get(c *gin.Context) {
	id, ok := h.checkoutID(c)
	if !ok {
		return
	}
	result, err := h.service.GetCheckout(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, checkoutapp.ToCheckoutResponse(result))
}

// Complete confirms payment of a reserved checkout
func (h *CheckoutHandler) Complete(c *gin.Context) {
	id, ok := h.checkoutID(c)
	if !ok {
		return
	}
	var req CompleteCheckoutRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.CompleteCheckout(c.Request.Context(), checkoutapp.CompleteCheckoutCommand{
		CheckoutID:      id,
		PaymentID:       req.PaymentID,
		PGTransactionID: req.PGTransactionID,
		PaidAmount:      req.PaidAmount,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, checkoutapp.ToCheckoutResponse(result))
}

// Cancel cancels a reserved checkout and restores its stock
func (h *CheckoutHandler) Cancel(c *gin.Context) {
	id, ok := h.checkoutID(c)
	if !ok {
		return
	}

	var req CancelCheckoutRequest
	// the body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.HandleValidationError(c, err)
		return
	}
	reason := checkout.CancelReasonUserRequested
	if req.Reason != "" {
		parsed, err := checkout.ParseCancelReason(req.Reason)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		reason = parsed
	}

	result, err := h.service.CancelCheckout(c.Request.Context(), id, reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, checkoutapp.ToCheckoutResponse(result))
}

func (h *CheckoutHandler) checkoutID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid checkout ID format")
		return uuid.Nil, false
	}
	return id, true
}
