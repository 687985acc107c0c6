package admin

import (
	"fmt"
)

// Warning codes
const (
	WarnHookNotInstalled       = "hook_not_installed"
	WarnSnapshotDirNotWritable = "snapshot_dir_not_writable"
	WarnSnapshotOutOfSync      = "snapshot_out_of_sync"
	WarnSnapshotMissing        = "snapshot_missing"
)

// Warning is an advisory health finding. It never blocks admin operations.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warnings runs the advisory checks. Checks that fail to run are reported
// as warnings too.
func (s *Service) Warnings() []Warning {
	warnings := []Warning{}

	if w, ok := s.checkHook(); ok {
		warnings = append(warnings, w)
	}

	if err := s.snapshot.DirWritable(); err != nil {
		warnings = append(warnings, Warning{
			Code:    WarnSnapshotDirNotWritable,
			Message: fmt.Sprintf("snapshot directory for %s is not writable: %v", s.snapshot.Path(), err),
		})
	}

	if status := s.store.SyncStatus(); status.LastError != nil {
		warnings = append(warnings, Warning{
			Code:    WarnSnapshotOutOfSync,
			Message: fmt.Sprintf("last snapshot publish failed at %s: %v", status.LastTriedAt.Format("2006-01-02 15:04:05"), status.LastError),
		})
	}

	exists, err := s.snapshot.Exists()
	if err != nil || !exists {
		msg := fmt.Sprintf("snapshot %s does not exist, alias routing is inactive", s.snapshot.Path())
		if err != nil {
			msg = fmt.Sprintf("snapshot %s cannot be checked: %v", s.snapshot.Path(), err)
		}
		warnings = append(warnings, Warning{Code: WarnSnapshotMissing, Message: msg})
	}

	return warnings
}

func (s *Service) checkHook() (Warning, bool) {
	if s.installer == nil {
		return Warning{
			Code:    WarnHookNotInstalled,
			Message: "no bootstrap config configured, early boot routing is disabled",
		}, true
	}

	installed, err := s.installer.Installed()
	switch {
	case err != nil:
		return Warning{
			Code:    WarnHookNotInstalled,
			Message: fmt.Sprintf("cannot read bootstrap config %s: %v", s.installer.Path(), err),
		}, true
	case !installed:
		return Warning{
			Code:    WarnHookNotInstalled,
			Message: fmt.Sprintf("add `early_boot = true` to %s to enable alias routing", s.installer.Path()),
		}, true
	case s.point != nil && !s.point.Registered():
		return Warning{
			Code:    WarnHookNotInstalled,
			Message: fmt.Sprintf("%s enables early_boot but the early router is not active, install the hook from the admin API or restart", s.installer.Path()),
		}, true
	}
	return Warning{}, false
}
