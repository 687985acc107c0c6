package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/MrSnakeDoc/onionroute/internal/admin"
	"github.com/MrSnakeDoc/onionroute/internal/config"
	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/MrSnakeDoc/onionroute/internal/earlyboot"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/mw"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
	"github.com/MrSnakeDoc/onionroute/internal/mapping"
	"github.com/MrSnakeDoc/onionroute/internal/redis"
	"github.com/MrSnakeDoc/onionroute/internal/scheduler"
	"github.com/MrSnakeDoc/onionroute/internal/snapshot"
	"github.com/MrSnakeDoc/onionroute/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/onionroute/internal/store/redis"
	"github.com/MrSnakeDoc/onionroute/internal/store/sqldb"
	"github.com/MrSnakeDoc/onionroute/internal/tenants"
	"github.com/MrSnakeDoc/onionroute/internal/utils"
	"github.com/MrSnakeDoc/onionroute/internal/version"
)

type App struct {
	cfg        *config.Config
	logger     logger.Logger
	admin      *httpserver.Server
	site       *httpserver.Server
	reloader   *scheduler.TenantsReloader
	reconciler *scheduler.SnapshotReconciler
	closers    []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		loggerClient.Errorf("Invalid upstream URL %q: %v", cfg.UpstreamURL, err)
		os.Exit(1)
	}

	var closers []namedCloser

	// Durable mapping backend - fail fast if unavailable
	backend, closer, err := openBackend(cfg, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to open %s store: %v", cfg.Store, err)
		os.Exit(1)
	}
	if closer != nil {
		closers = append(closers, namedCloser{name: cfg.Store + " store", c: closer})
	}
	loggerClient.Info("mapping store initialized", logger.String("store", cfg.Store))

	// Snapshot publishing
	osFs := afero.NewOsFs()
	writer := snapshot.NewWriter(osFs, cfg.SnapshotPath, loggerClient)
	store := mapping.NewStore(backend, writer, domain.NewAliasValidator(cfg.AliasSuffix), loggerClient)

	// Republish on startup so the snapshot matches the durable store
	if err := store.Resync(context.Background()); err != nil {
		loggerClient.Warn("initial snapshot publish failed, routing may be stale",
			logger.String("path", cfg.SnapshotPath),
			logger.Error(err))
	}

	// Early router
	var provider snapshot.Provider = snapshot.NewFileProvider(osFs, cfg.SnapshotPath)
	if cfg.SnapshotWatch {
		wp, err := snapshot.NewWatchProvider(cfg.SnapshotPath, loggerClient)
		if err != nil {
			loggerClient.Warn("snapshot watcher unavailable, reading snapshot per request",
				logger.Error(err))
		} else {
			provider = wp
			closers = append(closers, namedCloser{name: "snapshot watcher", c: wp})
		}
	}
	router := earlyboot.NewRouter(provider, loggerClient)
	point := earlyboot.NewPoint()

	// Early boot opt-in
	var installer *earlyboot.Installer
	if cfg.BootstrapConfig != "" {
		installer = earlyboot.NewInstaller(osFs, cfg.BootstrapConfig, cfg.SnapshotPath, loggerClient)
		if cfg.AutoInstallHook {
			if res, err := installer.Install(); err != nil {
				loggerClient.Warn("automatic hook install failed", logger.Error(err))
			} else {
				loggerClient.Info("early boot hook checked", logger.String("result", res.String()))
			}
		}
	} else {
		loggerClient.Warn("bootstrap config not configured, early boot routing disabled")
	}

	activateHook := func() error {
		if installer == nil {
			return errors.New("no bootstrap config configured")
		}
		installed, err := installer.Installed()
		if err != nil {
			return err
		}
		if !installed {
			return fmt.Errorf("early_boot is not enabled in %s", installer.Path())
		}
		return point.Register(router)
	}
	if err := activateHook(); err != nil {
		loggerClient.Warn("early router not active", logger.Error(err))
	} else {
		loggerClient.Info("early router registered")
	}

	// Tenant directory
	tenantsDir := tenants.NewDirectory(nil)
	var (
		reloader      *scheduler.TenantsReloader
		reloadTrigger chan struct{}
	)
	if cfg.TenantsFile != "" {
		reloadTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewTenantsReloader(
			cfg.TenantsFile,
			tenantsDir,
			loggerClient,
			cfg.TenantsReloadInterval,
			reloadTrigger,
		)
	} else {
		loggerClient.Info("tenants file not configured, tenant search and Onion-Location disabled")
	}

	reconciler := scheduler.NewSnapshotReconciler(store, writer, loggerClient, cfg.ReconcileInterval)

	// The admin service tolerates a nil installer.
	var hookInstaller admin.HookInstaller
	if installer != nil {
		hookInstaller = installer
	}
	adminService := admin.NewService(store, writer, hookInstaller, point, tenantsDir, loggerClient)

	// Dependencies passed to routes
	d := deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		AllowedHosts: cfg.AllowedHosts,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		CORSOrigins:  cfg.CORSOrigins,
		RateLimit: mw.RateLimitConfig{
			RPS:        cfg.RateLimitRPS,
			Burst:      cfg.RateLimitBurst,
			MaxEntries: 10000,
			TrustProxy: cfg.TrustProxy,
		},
		Admin:         adminService,
		Store:         store,
		Router:        router,
		Point:         point,
		Tenants:       tenantsDir,
		ReloadTrigger: reloadTrigger,
		ActivateHook:  activateHook,
	}

	return &App{
		cfg:        cfg,
		logger:     loggerClient,
		admin:      httpserver.NewAdmin(cfg.AdminListen, loggerClient, d),
		site:       httpserver.NewSite(cfg.SiteListen, upstream, loggerClient, d),
		reloader:   reloader,
		reconciler: reconciler,
		closers:    closers,
	}
}

// openBackend builds the durable store selected by cfg.Store.
// The returned closer is nil when there is nothing to release.
func openBackend(cfg *config.Config, log logger.Logger) (mapping.Backend, io.Closer, error) {
	ctx := context.Background()

	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("memory store selected, mappings are lost on restart")
		return memory.New(), nil, nil

	case config.StoreRedis:
		client, err := redis.Connect(ctx, redis.ConnectOptions{
			URL:            cfg.RedisURL,
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.NewBackend(client, cfg.RedisKeyPrefix), client, nil

	case config.StoreSQLite, config.StorePostgres:
		sqlCfg := sqldb.Config{
			Driver:          sqldb.DriverSQLite,
			DSN:             sqldb.SQLiteDSN(cfg.SQLitePath),
			MaxOpenConns:    cfg.SQLMaxOpenConns,
			MaxIdleConns:    cfg.SQLMaxOpenConns,
			ConnMaxLifetime: 30 * time.Minute,
		}
		if cfg.Store == config.StorePostgres {
			sqlCfg.Driver = sqldb.DriverPostgres
			sqlCfg.DSN = cfg.PostgresDSN
		}
		backend, err := sqldb.Open(ctx, sqlCfg, log)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting %s", version.String())
	a.logger.Info("listeners",
		logger.String("admin", a.cfg.AdminListen),
		logger.String("site", a.cfg.SiteListen))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start tenants reloader (loads the directory and starts periodic refresh)
	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start tenants reloader: %w", err)
		}
		a.logger.Info("tenants reloader started",
			logger.Duration("interval", a.cfg.TenantsReloadInterval))
	}

	// Start snapshot reconciler (no-op when disabled)
	if err := a.reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start snapshot reconciler: %w", err)
	}
	if a.reconciler.Enabled() {
		a.logger.Info("snapshot reconciler started",
			logger.Duration("interval", a.cfg.ReconcileInterval))
	}

	errCh := make(chan error, 2)
	for _, srv := range []*httpserver.Server{a.admin, a.site} {
		go func(s *httpserver.Server) {
			if err := s.Start(); err != nil {
				errCh <- fmt.Errorf("http server error: %w", err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
		a.logger.Error("server failed, shutting down", logger.Error(runErr))
	}

	if a.reloader != nil && a.cfg.TenantsReloadInterval > 0 {
		a.reloader.Stop()
	}
	if a.reconciler.Enabled() {
		a.reconciler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	for _, srv := range []*httpserver.Server{a.site, a.admin} {
		if err := srv.Stop(shutdownCtx); err != nil && runErr == nil {
			runErr = fmt.Errorf("failed to stop server: %w", err)
		}
	}

	for _, nc := range a.closers {
		utils.MustClose(nc.c, nc.name, a.logger)
	}

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ onionroute stopped cleanly")
	return nil
}
