package enum

import "github.com/yanun0323/errors"

var ErrUnknownSyncMode = errors.New("unknown sync mode")

// SyncMode selects the pacing profile for a sync run.
type SyncMode uint8

const (
	_sync_mode_beg SyncMode = iota
	// SyncModeInit is the slow full sync used for first deployment.
	SyncModeInit
	// SyncModeDaily is the fast incremental sync for routine updates.
	SyncModeDaily
	_sync_mode_end
)

func (m SyncMode) IsAvailable() bool {
	return m > _sync_mode_beg && m < _sync_mode_end
}

func (m SyncMode) String() string {
	switch m {
	case SyncModeInit:
		return "init"
	case SyncModeDaily:
		return "daily"
	default:
		return "unknown"
	}
}

// ParseSyncMode maps a mode name to its enum value.
func ParseSyncMode(name string) (SyncMode, error) {
	switch name {
	case "init":
		return SyncModeInit, nil
	case "daily":
		return SyncModeDaily, nil
	default:
		return 0, ErrUnknownSyncMode
	}
}
