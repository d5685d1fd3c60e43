package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crm/hub/internal/application/hub"
	"github.com/crm/hub/internal/domain/delivery"
	"github.com/crm/hub/internal/domain/integration"
	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/infrastructure/ratelimit"
	"github.com/crm/hub/internal/infrastructure/signature"
	"github.com/crm/hub/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name: "from context string",
			setup: func(c *gin.Context) {
				c.Set(RequestIDKey, "ctx-request-id")
			},
			expectedID: "ctx-request-id",
		},
		{
			name: "from header when context empty",
			setup: func(c *gin.Context) {
				c.Request.Header.Set("X-Request-ID", "header-request-id")
			},
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(RequestIDKey, "ctx-id")
				c.Request.Header.Set("X-Request-ID", "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/", nil)
			tt.setup(c)

			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestBaseHandlerResponses(t *testing.T) {
	h := &BaseHandler{}

	t.Run("Success", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		h.Success(c, map[string]string{"system_id": "dialfire"})

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
	})

	t.Run("SuccessWithMeta", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		h.SuccessWithMeta(c, []string{"a", "b"}, 100, 1, 10)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(100), resp.Meta.Total)
	})

	t.Run("Created", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		h.Created(c, map[string]string{"id": "123"})

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("NoContent", func(t *testing.T) {
		router := gin.New()
		router.DELETE("/test", func(c *gin.Context) {
			h.NoContent(c)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("DELETE", "/test", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.Bytes())
	})

	t.Run("error helpers set code and status", func(t *testing.T) {
		tests := []struct {
			name         string
			call         func(*gin.Context)
			expectedCode int
			expectedErr  string
		}{
			{"BadRequest", func(c *gin.Context) { h.BadRequest(c, "bad") }, http.StatusBadRequest, dto.ErrCodeBadRequest},
			{"NotFound", func(c *gin.Context) { h.NotFound(c, "missing") }, http.StatusNotFound, dto.ErrCodeNotFound},
			{"Unauthorized", func(c *gin.Context) { h.Unauthorized(c, "no auth") }, http.StatusUnauthorized, dto.ErrCodeUnauthorized},
			{"InternalError", func(c *gin.Context) { h.InternalError(c, "boom") }, http.StatusInternalServerError, dto.ErrCodeInternal},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := httptest.NewRecorder()
				c, _ := gin.CreateTestContext(w)
				c.Request = httptest.NewRequest("GET", "/", nil)

				tt.call(c)

				assert.Equal(t, tt.expectedCode, w.Code)

				var resp dto.Response
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.False(t, resp.Success)
				assert.Equal(t, tt.expectedErr, resp.Error.Code)
			})
		}
	})

	t.Run("ErrorWithCode derives status", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/", nil)

		h.ErrorWithCode(c, dto.ErrCodeDirectionNotSupported, "outbound only")

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("error carries request ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/", nil)
		c.Set(RequestIDKey, "test-request-123")

		h.BadRequest(c, "bad")

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "test-request-123", resp.Error.RequestID)
	})

	t.Run("ValidationError includes details", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/", nil)

		h.ValidationError(c, []dto.ValidationDetail{
			{Field: "endpoint_url", Message: "Invalid URL format"},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.Len(t, resp.Error.Details, 1)
	})
}

func TestBaseHandlerHandleError(t *testing.T) {
	h := &BaseHandler{}

	run := func(err error) (*httptest.ResponseRecorder, dto.Response) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/", nil)

		h.HandleError(c, err)

		var resp dto.Response
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		return w, resp
	}

	t.Run("nil error writes nothing", func(t *testing.T) {
		w, _ := run(nil)
		assert.Empty(t, w.Body.Bytes())
	})

	t.Run("domain errors map through the code table", func(t *testing.T) {
		tests := []struct {
			err          error
			expectedCode int
			expectedErr  string
		}{
			{shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
			{shared.ErrAlreadyExists, http.StatusConflict, dto.ErrCodeAlreadyExists},
			{shared.ErrInvalidInput, http.StatusBadRequest, dto.ErrCodeInvalidInput},
			{shared.ErrInvalidState, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
			{shared.ErrForbidden, http.StatusForbidden, dto.ErrCodeForbidden},
		}

		for _, tt := range tests {
			w, resp := run(tt.err)
			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Equal(t, tt.expectedErr, resp.Error.Code)
		}
	})

	t.Run("wrapped domain error still maps", func(t *testing.T) {
		w, resp := run(fmt.Errorf("loading subscription: %w", shared.ErrNotFound))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})

	t.Run("rate limit error returns 429", func(t *testing.T) {
		limitErr := &ratelimit.LimitError{
			TenantID: uuid.NewString(),
			SystemID: "dialfire",
			Window:   ratelimit.WindowMinute,
			Limit:    60,
		}

		w, resp := run(limitErr)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, dto.ErrCodeRateLimited, resp.Error.Code)
	})

	t.Run("signature failures return a uniform 401", func(t *testing.T) {
		for _, sigErr := range []error{
			signature.ErrMissingSignature,
			signature.ErrMismatch,
			signature.ErrUnsupportedScheme,
			signature.ErrSecretUnavailable,
		} {
			w, resp := run(sigErr)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, dto.ErrCodeInvalidSignature, resp.Error.Code)
			assert.Equal(t, "Webhook signature verification failed", resp.Error.Message)
		}
	})

	t.Run("permission denied returns 403", func(t *testing.T) {
		w, resp := run(hub.ErrPermissionDenied)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, dto.ErrCodeForbidden, resp.Error.Code)
	})

	t.Run("unknown system returns 404", func(t *testing.T) {
		w, resp := run(integration.ErrSystemNotRegistered)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})

	t.Run("duplicate system returns 409", func(t *testing.T) {
		w, _ := run(integration.ErrSystemAlreadyExists)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid subscription returns 400", func(t *testing.T) {
		w, resp := run(delivery.ErrInvalidSubscription)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidInput, resp.Error.Code)
	})

	t.Run("direction mismatch returns 422", func(t *testing.T) {
		w, resp := run(integration.ErrDirectionNotSupported)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeDirectionNotSupported, resp.Error.Code)
	})

	t.Run("standard error returns opaque 500", func(t *testing.T) {
		w, resp := run(assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
		assert.Equal(t, "An unexpected error occurred", resp.Error.Message)
	})
}
