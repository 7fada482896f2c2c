package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/vozfeed/vozfeed/internal/auth"
	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubTenants serves one known tenant by id.
type stubTenants struct {
	tenant *domain.Tenant
	getErr error
}

func (s *stubTenants) Signup(ctx context.Context, params service.SignupParams) (*domain.Tenant, error) {
	return s.tenant, nil
}

func (s *stubTenants) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.tenant == nil || s.tenant.ID != id {
		return nil, domain.NotFound("tenant.get", "tenant", id.String())
	}
	return s.tenant, nil
}

func (s *stubTenants) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Tenant, error) {
	return s.tenant, nil
}

func (s *stubTenants) ApplyPlanChange(ctx context.Context, tenantID uuid.UUID, tier domain.PlanTier, periodEnd time.Time) (bool, error) {
	return true, nil
}

func (s *stubTenants) SetActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	return nil
}

func TestRequireTenant(t *testing.T) {
	tenant := &domain.Tenant{ID: uuid.New(), Email: "dona@padaria.com.br", PlanTier: domain.PlanTierFree, IsActive: true}

	newHandler := func(tenants service.TenantService) (http.Handler, *[]*domain.Tenant) {
		var seen []*domain.Tenant
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, auth.GetTenant(r.Context()))
			w.WriteHeader(http.StatusOK)
		})
		return RequireTenant(tenants, testLogger())(next), &seen
	}

	t.Run("resolves the tenant onto the request context", func(t *testing.T) {
		h, seen := newHandler(&stubTenants{tenant: tenant})

		req := httptest.NewRequest("GET", "/v1/usage", nil)
		req.Header.Set(TenantIDHeader, tenant.ID.String())
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, *seen, 1)
		assert.Equal(t, tenant, (*seen)[0])
	})

	t.Run("missing header", func(t *testing.T) {
		h, seen := newHandler(&stubTenants{tenant: tenant})

		req := httptest.NewRequest("GET", "/v1/usage", nil)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, *seen)
	})

	t.Run("malformed header", func(t *testing.T) {
		h, seen := newHandler(&stubTenants{tenant: tenant})

		req := httptest.NewRequest("GET", "/v1/usage", nil)
		req.Header.Set(TenantIDHeader, "not-a-uuid")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, *seen)
	})

	t.Run("unknown tenant reads as unauthorized, not not found", func(t *testing.T) {
		h, seen := newHandler(&stubTenants{tenant: tenant})

		req := httptest.NewRequest("GET", "/v1/usage", nil)
		req.Header.Set(TenantIDHeader, uuid.New().String())
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, *seen)
	})

	t.Run("storage fault is a server error", func(t *testing.T) {
		h, seen := newHandler(&stubTenants{getErr: domain.Internal(context.DeadlineExceeded, "tenant.get", "lookup failed")})

		req := httptest.NewRequest("GET", "/v1/usage", nil)
		req.Header.Set(TenantIDHeader, tenant.ID.String())
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Empty(t, *seen)
	})
}

func TestStack_OrdersOutsideIn(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Stack(mw("outer"), mw("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
