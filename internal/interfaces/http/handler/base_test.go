package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/shared"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/logger"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/interfaces/http/dto"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func newTestContext(method, path string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, nil)
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp
}

func TestGetRequestID(t *testing.T) {
	t.Run("from header", func(t *testing.T) {
		c, _ := newTestContext(http.MethodGet, "/")
		c.Request.Header.Set(logger.RequestIDHeader, "header-id")
		assert.Equal(t, "header-id", getRequestID(c))
	})

	t.Run("empty when not set", func(t *testing.T) {
		c, _ := newTestContext(http.MethodGet, "/")
		assert.Empty(t, getRequestID(c))
	})
}

func TestBaseHandlerSuccess(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodGet, "/")

	h.Success(c, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse[map[string]string]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "value", resp.Data["key"])
	assert.Nil(t, resp.Error)
}

func TestBaseHandlerCreated(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodPost, "/")

	h.Created(c, map[string]int{"id": 1})

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestBaseHandlerBadRequest(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodGet, "/")
	c.Request.Header.Set(logger.RequestIDHeader, "req-1")

	h.BadRequest(c, "nope")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
	assert.Equal(t, "nope", resp.Error.Message)
	assert.Equal(t, "req-1", resp.Error.RequestID)
}

func TestBaseHandlerHandleError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"insufficient stock", stock.ErrInsufficientStock, http.StatusUnprocessableEntity, dto.ErrCodeInsufficientStock, false},
		{"stock not found", stock.ErrStockNotFound, http.StatusNotFound, dto.ErrCodeStockNotFound, false},
		{"lock timeout", shared.ErrLockAcquisitionFailed, http.StatusConflict, dto.ErrCodeLockTimeout, true},
		{"conflict", shared.ErrConcurrencyConflict, http.StatusConflict, dto.ErrCodeConcurrencyConflict, true},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, dto.ErrCodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			c, w := newTestContext(http.MethodGet, "/")

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
			assert.Len(t, c.Errors, 1)
		})
	}

	t.Run("nil error writes nothing", func(t *testing.T) {
		h := &BaseHandler{}
		c, w := newTestContext(http.MethodGet, "/")
		h.HandleError(c, nil)
		assert.Empty(t, w.Body.Bytes())
	})
}
