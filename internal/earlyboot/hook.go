package earlyboot

import (
	"context"
	"net/http"
	"strconv"

	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

// HeaderTenantID carries the routed tenant to the site handler.
const HeaderTenantID = "X-Tenant-ID"

// RetryAfterSeconds is advertised on short-circuited responses.
const RetryAfterSeconds = 3600

type (
	ctxKey   struct{}
	traceKey struct{}
)

// Trace records the decision taken for a request by an outer handler that
// cannot see the routed request, such as an access log.
type Trace struct {
	Outcome  Outcome
	TenantID int64
}

// WithTrace returns a copy of ctx with an empty Trace that ServeEarly fills.
func WithTrace(ctx context.Context) (context.Context, *Trace) {
	t := &Trace{}
	return context.WithValue(ctx, traceKey{}, t), t
}

// WithTenant returns a copy of ctx carrying tenantID.
func WithTenant(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// TenantFromContext returns the tenant chosen by the router, if any.
func TenantFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKey{}).(int64)
	return id, ok
}

// ServeEarly applies the routing decision for r. It either answers the
// request itself or calls next.
func (r *Router) ServeEarly(w http.ResponseWriter, req *http.Request, next http.Handler) {
	d := r.Route(req.Host)
	if t, ok := req.Context().Value(traceKey{}).(*Trace); ok {
		t.Outcome, t.TenantID = d.Outcome, d.TenantID
	}

	switch d.Outcome {
	case ShortCircuit:
		r.logger.Debug("alias disabled, short-circuiting",
			logger.String("host", req.Host),
			logger.Int64("tenant_id", d.TenantID))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(d.Message))

	case Rewrite:
		routed := req.Clone(WithTenant(req.Context(), d.TenantID))
		routed.Header.Set(HeaderTenantID, strconv.FormatInt(d.TenantID, 10))
		next.ServeHTTP(w, routed)

	default:
		next.ServeHTTP(w, req)
	}
}

// Middleware is ServeEarly as a chi style middleware.
func (r *Router) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.ServeEarly(w, req, next)
	})
}
