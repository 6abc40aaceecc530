package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	stockapp "github.com/ryu-qqq/setof-commerce-sub022/internal/application/stock"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStockService struct {
	productID int64
	quantity  int64
	err       error
}

func (f *fakeStockService) CreateStock(_ context.Context, productID, initial int64) (*stockapp.StockResponse, error) {
	f.productID, f.quantity = productID, initial
	if f.err != nil {
		return nil, f.err
	}
	return &stockapp.StockResponse{ID: 1, ProductID: productID, Quantity: initial}, nil
}

func (f *fakeStockService) SetStockQuantity(_ context.Context, productID, quantity int64) (*stockapp.StockResponse, error) {
	f.productID, f.quantity = productID, quantity
	if f.err != nil {
		return nil, f.err
	}
	return &stockapp.StockResponse{ID: 1, ProductID: productID, Quantity: quantity, Version: 2}, nil
}

func (f *fakeStockService) GetStock(_ context.Context, productID int64) (*stockapp.StockResponse, error) {
	f.productID = productID
	if f.err != nil {
		return nil, f.err
	}
	return &stockapp.StockResponse{ID: 1, ProductID: productID, Quantity: 5}, nil
}

func (f *fakeStockService) GetAvailability(_ context.Context, productID int64) (*stockapp.AvailabilityResponse, error) {
	f.productID = productID
	if f.err != nil {
		return nil, f.err
	}
	return &stockapp.AvailabilityResponse{ProductID: productID, Quantity: 5, InStock: true, Source: "cache"}, nil
}

func stockEngine(svc StockService) *gin.Engine {
	engine := gin.New()
	NewStockHandler(svc, zap.NewNop()).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func TestStockHandler_Create(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := &fakeStockService{}
		w := doJSON(stockEngine(svc), http.MethodPost, "/api/v1/stocks", map[string]int64{"product_id": 3, "quantity": 10}, nil)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var resp APIResponse[stockapp.StockResponse]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(3), resp.Data.ProductID)
		assert.Equal(t, int64(10), resp.Data.Quantity)
	})

	t.Run("negative quantity", func(t *testing.T) {
		svc := &fakeStockService{}
		w := doJSON(stockEngine(svc), http.MethodPost, "/api/v1/stocks", map[string]int64{"product_id": 3, "quantity": -1}, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, svc.productID)
	})

	t.Run("already stocked", func(t *testing.T) {
		svc := &fakeStockService{err: stock.ErrStockAlreadyExists}
		w := doJSON(stockEngine(svc), http.MethodPost, "/api/v1/stocks", map[string]int64{"product_id": 3, "quantity": 1}, nil)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeAlreadyExists, decodeError(t, w).Error.Code)
	})
}

func TestStockHandler_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := &fakeStockService{}
		w := doJSON(stockEngine(svc), http.MethodGet, "/api/v1/stocks/42", nil, nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(42), svc.productID)
	})

	t.Run("not found", func(t *testing.T) {
		svc := &fakeStockService{err: stock.ErrStockNotFound}
		w := doJSON(stockEngine(svc), http.MethodGet, "/api/v1/stocks/42", nil, nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeStockNotFound, decodeError(t, w).Error.Code)
	})

	t.Run("invalid product id", func(t *testing.T) {
		for _, raw := range []string{"abc", "0", "-4"} {
			w := doJSON(stockEngine(&fakeStockService{}), http.MethodGet, "/api/v1/stocks/"+raw, nil, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, raw)
		}
	})
}

func TestStockHandler_Set(t *testing.T) {
	svc := &fakeStockService{}
	w := doJSON(stockEngine(svc), http.MethodPut, "/api/v1/stocks/5", map[string]int64{"quantity": 0}, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(5), svc.productID)
	assert.Zero(t, svc.quantity)
}

func TestStockHandler_Availability(t *testing.T) {
	svc := &fakeStockService{}
	w := doJSON(stockEngine(svc), http.MethodGet, "/api/v1/stocks/5/availability", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse[stockapp.AvailabilityResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.InStock)
	assert.Equal(t, "cache", resp.Data.Source)
}
