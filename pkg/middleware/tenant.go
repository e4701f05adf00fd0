package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/database"
	"github.com/casetrail/engine/pkg/models"
)

// TenantHeader carries the caller's tenant identity. Every data-plane
// request must present it; requests without a valid tenant never reach a
// database connection.
const TenantHeader = "X-Tenant-Id"

// ActorHeader optionally identifies the human analyst behind a request.
// Absent, actions are attributed to the system.
const ActorHeader = "X-Actor-Id"

// TenantScope returns middleware that opens a tenant-scoped database
// connection for the request and closes it when the request finishes. All
// queries downstream run with row-level security pinned to this tenant.
func TenantScope(provider *database.TenantScopeProvider, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(TenantHeader)
			if raw == "" {
				http.Error(w, "missing "+TenantHeader+" header", http.StatusBadRequest)
				return
			}
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "invalid "+TenantHeader+" header", http.StatusBadRequest)
				return
			}

			ctx, cleanup, err := provider.WithTenantScope(r.Context(), tenantID)
			if err != nil {
				logger.Error("failed to open tenant scope",
					zap.String("tenant_id", tenantID.String()), zap.Error(err))
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			defer cleanup()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Actor returns middleware that attaches the acting identity to the request
// context. A request with an analyst header is attributed to that analyst;
// anything else runs as the system.
func Actor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := r.Header.Get(ActorHeader); id != "" {
				ctx = models.WithActor(ctx, models.Actor{ID: id, Source: models.SourceAnalyst})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
