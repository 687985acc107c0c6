package deps

import (
	"time"

	"github.com/MrSnakeDoc/onionroute/internal/admin"
	"github.com/MrSnakeDoc/onionroute/internal/earlyboot"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/mw"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
	"github.com/MrSnakeDoc/onionroute/internal/mapping"
	"github.com/MrSnakeDoc/onionroute/internal/tenants"
)

type Deps struct {
	Logger        logger.Logger
	StartTime     time.Time
	Version       string
	Commit        string
	BuildDate     string
	GoVersion     string
	AllowedHosts  []string           // Host headers allowed to access the admin API
	AllowedCIDRS  []string           // IPs allowed to access the admin API and readyz
	TrustProxy    bool               // true if running behind a trusted reverse proxy
	CORSOrigins   []string           // Browser origins allowed to call the admin API
	RateLimit     mw.RateLimitConfig // Per-IP limit on the admin API
	Admin         *admin.Service     // Operator operations
	Store         *mapping.Store     // Mapping store (sync status, ping)
	Router        *earlyboot.Router  // Early router (corrupt snapshot counter)
	Point         *earlyboot.Point   // Early boot extension point of the site
	Tenants       *tenants.Directory // Tenant directory
	ReloadTrigger chan struct{}      // Channel to trigger a manual tenants reload
	ActivateHook  func() error       // Registers the early router after a hook install (nil if unsupported)
}
