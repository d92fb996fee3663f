package middleware

import (
	"context"
	"net/http"

	"github.com/utafrali/redeemables/pkg/httputil"
	"github.com/utafrali/redeemables/pkg/logger"
)

// TenantHeader names the tenant a request acts for.
const TenantHeader = "X-Tenant-ID"

const maxTenantIDLen = 64

// Tenant rejects requests without a well-formed X-Tenant-ID header and stores
// the tenant ID in the request context.
func Tenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(TenantHeader)
			if id == "" {
				writeTenantError(w, r, "missing "+TenantHeader+" header")
				return
			}
			if !validTenantID(id) {
				writeTenantError(w, r, "malformed "+TenantHeader+" header")
				return
			}
			next.ServeHTTP(w, r.WithContext(logger.WithTenantID(r.Context(), id)))
		})
	}
}

// TenantIDFromContext returns the tenant set by Tenant.
func TenantIDFromContext(ctx context.Context) string {
	return logger.TenantIDFromContext(ctx)
}

// TenantIDFromRequest reads the tenant header without validating it.
func TenantIDFromRequest(r *http.Request) string {
	if id := TenantIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(TenantHeader)
}

func validTenantID(id string) bool {
	if len(id) > maxTenantIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

func writeTenantError(w http.ResponseWriter, r *http.Request, message string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{Error: &httputil.ErrorResponse{
		Code:      "INVALID_TENANT",
		Message:   message,
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}})
}
