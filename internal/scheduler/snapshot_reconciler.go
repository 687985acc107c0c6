package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/onionroute/internal/logger"
	"github.com/MrSnakeDoc/onionroute/internal/mapping"
)

// SyncSource is the part of mapping.Store the reconciler drives.
type SyncSource interface {
	Resync(ctx context.Context) error
	SyncStatus() mapping.SyncStatus
}

// SnapshotFile reports whether the published snapshot is on disk.
type SnapshotFile interface {
	Exists() (bool, error)
}

// SnapshotReconciler republishes the snapshot when the last publish failed
// or the file disappeared.
type SnapshotReconciler struct {
	store    SyncSource
	file     SnapshotFile
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewSnapshotReconciler creates a reconciler. interval <= 0 disables it.
func NewSnapshotReconciler(store SyncSource, file SnapshotFile, log logger.Logger, interval time.Duration) *SnapshotReconciler {
	return &SnapshotReconciler{
		store:    store,
		file:     file,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Enabled reports whether Start runs a loop.
func (sr *SnapshotReconciler) Enabled() bool { return sr.interval > 0 }

// Start begins the periodic reconcile process
func (sr *SnapshotReconciler) Start(ctx context.Context) error {
	if !sr.Enabled() {
		sr.logger.Debug("snapshot reconciler disabled")
		return nil
	}

	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := sr.Reconcile(ctx); err != nil {
					sr.logger.Error("snapshot reconcile failed", logger.Error(err))
				}
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reconciler
func (sr *SnapshotReconciler) Stop() {
	close(sr.stopCh)
}

// Reconcile republishes when needed and reports whether it did.
func (sr *SnapshotReconciler) Reconcile(ctx context.Context) (bool, error) {
	status := sr.store.SyncStatus()

	exists, err := sr.file.Exists()
	if err != nil {
		sr.logger.Warn("cannot stat snapshot", logger.Error(err))
	}

	if status.InSync() && exists {
		sr.logger.Debug("snapshot in sync")
		return false, nil
	}

	sr.logger.Info("republishing snapshot",
		logger.Bool("file_present", exists),
		logger.Bool("last_publish_failed", status.LastError != nil))

	if err := sr.store.Resync(ctx); err != nil {
		return true, err
	}
	return true, nil
}
