package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/onionroute/internal/logger"
	"github.com/MrSnakeDoc/onionroute/internal/tenants"
)

// TenantsReloader handles periodic reloading of the tenant directory
type TenantsReloader struct {
	loader        *tenants.Loader
	directory     *tenants.Directory
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewTenantsReloader creates a new tenants reloader
func NewTenantsReloader(
	tenantsFile string,
	dir *tenants.Directory,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *TenantsReloader {
	return &TenantsReloader{
		loader:        tenants.NewLoader(tenantsFile),
		directory:     dir,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the directory once, then keeps it fresh. A failed first load
// is logged and retried on the next tick. With a zero interval only the
// manual trigger reloads.
func (tr *TenantsReloader) Start(ctx context.Context) error {
	if tr.interval < 0 {
		return fmt.Errorf("tenants reload interval must be >= 0, got %v", tr.interval)
	}

	// Load immediately on start
	if err := tr.Reload(ctx); err != nil {
		tr.logger.Warn("initial tenants load failed",
			logger.String("file", tr.loader.Path()),
			logger.Error(err))
	}

	go func() {
		// A nil tick channel never fires.
		var tick <-chan time.Time
		if tr.interval > 0 {
			ticker := time.NewTicker(tr.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-tick:
				if err := tr.Reload(ctx); err != nil {
					tr.logger.Error("failed to reload tenants", logger.Error(err))
				}
			case <-tr.manualTrigger:
				tr.logger.Info("manual tenants reload triggered")
				if err := tr.Reload(ctx); err != nil {
					tr.logger.Error("failed to reload tenants", logger.Error(err))
				}
			case <-tr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (tr *TenantsReloader) Stop() {
	close(tr.stopCh)
}

// Reload reads the tenants file and swaps the directory content.
// On error the previous directory is kept.
func (tr *TenantsReloader) Reload(_ context.Context) error {
	list, err := tr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load tenants: %w", err)
	}

	previous := tr.directory.Len()
	tr.directory.Replace(list)

	tr.logger.Info("tenants reloaded",
		logger.String("file", tr.loader.Path()),
		logger.Int("count", len(list)),
		logger.Int("previous", previous))

	return nil
}
