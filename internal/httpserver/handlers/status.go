package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
)

type componentStatus struct {
	OK      bool   `json:"ok"`
	Count   *int64 `json:"count,omitempty"`
	LastRun string `json:"last_run,omitempty"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	RoutingMode string                     `json:"routing_mode"`
	Components  map[string]componentStatus `json:"components"`
}

// Status reports the health of every routing component.
func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantCount := int64(d.Tenants.Len())
		corrupt := d.Router.CorruptCount()

		components := map[string]componentStatus{
			"store":    checkStore(r.Context(), d),
			"snapshot": checkSnapshot(d, corrupt),
			"hook":     {OK: d.Point.Registered()},
			"tenants":  {OK: tenantCount > 0, Count: &tenantCount},
		}

		writeJSON(w, http.StatusOK, statusResponse{
			RoutingMode: determineRoutingMode(components),
			Components:  components,
		})
	}
}

func determineRoutingMode(components map[string]componentStatus) string {
	// Without the hook nothing is routed.
	if hook, exists := components["hook"]; exists && !hook.OK {
		return "inactive"
	}

	for _, name := range []string{"store", "snapshot"} {
		if c, exists := components[name]; exists && !c.OK {
			return "degraded"
		}
	}

	return "active"
}

func checkStore(ctx context.Context, d deps.Deps) componentStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.Store.Ping(ctx); err != nil {
		return componentStatus{OK: false, Error: err.Error()}
	}
	return componentStatus{OK: true}
}

func checkSnapshot(d deps.Deps, corrupt int64) componentStatus {
	st := d.Store.SyncStatus()

	s := componentStatus{OK: st.InSync(), LastRun: "never"}
	if !st.LastSyncedAt.IsZero() {
		s.LastRun = st.LastSyncedAt.Format("2006-01-02 15:04:05")
	}
	if corrupt > 0 {
		s.Count = &corrupt
	}
	if st.LastError != nil {
		s.Error = st.LastError.Error()
	}
	return s
}
