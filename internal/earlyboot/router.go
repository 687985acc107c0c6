// Package earlyboot routes requests for host aliases before the site
// handler runs, using only the published snapshot.
package earlyboot

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
	"github.com/MrSnakeDoc/onionroute/internal/snapshot"
)

// Outcome is what the router decided for a request.
type Outcome int

const (
	// PassThrough leaves the request untouched.
	PassThrough Outcome = iota
	// Rewrite serves the request as TenantID.
	Rewrite
	// ShortCircuit answers 503 with Message.
	ShortCircuit
)

func (o Outcome) String() string {
	switch o {
	case PassThrough:
		return "pass_through"
	case Rewrite:
		return "rewrite"
	case ShortCircuit:
		return "short_circuit"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decision is the result of Route.
type Decision struct {
	Outcome  Outcome
	TenantID int64
	Message  string
}

var passThrough = Decision{Outcome: PassThrough}

// Router looks up the request host in the current snapshot.
// It never fails: any problem degrades to PassThrough.
type Router struct {
	provider snapshot.Provider
	logger   logger.Logger

	corrupt atomic.Int64
}

func NewRouter(provider snapshot.Provider, log logger.Logger) *Router {
	return &Router{
		provider: provider,
		logger:   log,
	}
}

// Route decides how to serve a request for host (raw Host header).
func (r *Router) Route(host string) (d Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("early router panic, passing through",
				logger.String("host", host),
				logger.String("panic", fmt.Sprint(rec)))
			d = passThrough
		}
	}()

	snap, err := r.provider.Current()
	if err != nil {
		if !errors.Is(err, domain.ErrSnapshotMissing) {
			r.corrupt.Add(1)
			r.logger.Error("unreadable snapshot, passing through", logger.Error(err))
		}
		return passThrough
	}
	if snap == nil {
		return passThrough
	}

	tenantID, ok := snap.Lookup(domain.NormalizeHost(host))
	if !ok {
		return passThrough
	}

	if snap.Disabled() {
		return Decision{Outcome: ShortCircuit, TenantID: tenantID, Message: snap.DisabledMessage}
	}
	return Decision{Outcome: Rewrite, TenantID: tenantID}
}

// CorruptCount returns how many lookups hit an unreadable snapshot.
func (r *Router) CorruptCount() int64 {
	return r.corrupt.Load()
}
