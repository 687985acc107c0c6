package mw

import (
	"context"
	"net/http"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
	"github.com/MrSnakeDoc/onionroute/internal/tenants"
)

// AliasSource is the mapping lookup behind OnionLocation. mapping.Store satisfies it.
type AliasSource interface {
	AliasFor(ctx context.Context, tenantID int64) (string, bool, error)
	GetServiceState(ctx context.Context) (domain.ServiceState, error)
}

// TenantResolver finds the tenant serving a clearweb host.
type TenantResolver interface {
	Resolve(host, path string) (tenants.Tenant, bool)
}

// OnionLocation advertises the alias of the current tenant to clearweb
// visitors with an Onion-Location header. Requests already on an alias
// host, unmapped tenants and a disabled service get no header.
func OnionLocation(dir TenantResolver, aliases AliasSource, validator *domain.AliasValidator, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if dir != nil && !validator.IsAliasHost(r.Host) {
				if alias := lookupAlias(r, dir, aliases, log); alias != "" {
					w.Header().Set("Onion-Location", "http://"+alias+r.URL.RequestURI())
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func lookupAlias(r *http.Request, dir TenantResolver, aliases AliasSource, log logger.Logger) string {
	tenant, ok := dir.Resolve(r.Host, r.URL.Path)
	if !ok {
		return ""
	}

	ctx := r.Context()
	state, err := aliases.GetServiceState(ctx)
	if err != nil {
		log.Warn("onion-location: service state unavailable", logger.Error(err))
		return ""
	}
	if state.Disabled {
		return ""
	}

	alias, found, err := aliases.AliasFor(ctx, tenant.ID)
	if err != nil {
		log.Warn("onion-location: alias lookup failed",
			logger.Int64("tenant_id", tenant.ID),
			logger.Error(err))
		return ""
	}
	if !found {
		return ""
	}
	return alias
}
