package sync

import (
	"time"

	"main/internal/model/enum"
)

// ModeConfig is the pacing profile for one sync mode.
type ModeConfig struct {
	Mode enum.SyncMode
	// RatePerSecond and Burst feed the queue-level token bucket.
	RatePerSecond float64
	Burst         int
	// FetchWindowDays bounds the per-target fetch window; 0 means the full
	// history window (HistoryYears).
	FetchWindowDays int
	// ForceFull ignores freshness markers and re-fetches everything.
	ForceFull bool
	// Concurrency and ConcurrentRate feed the dual limiter in the
	// high-performance path.
	Concurrency    int
	ConcurrentRate float64
	Description    string
}

// HistoryYears is the full-history window used by init syncs and targets
// with no data at all.
const HistoryYears = 3

var modeConfigs = map[enum.SyncMode]ModeConfig{
	enum.SyncModeInit: {
		Mode:            enum.SyncModeInit,
		RatePerSecond:   0.1,
		Burst:           2,
		FetchWindowDays: 0,
		ForceFull:       true,
		Concurrency:     5,
		ConcurrentRate:  0.5,
		Description:     "init: slow full sync, one request per 10s",
	},
	enum.SyncModeDaily: {
		Mode:            enum.SyncModeDaily,
		RatePerSecond:   1.0,
		Burst:           10,
		FetchWindowDays: 3,
		ForceFull:       false,
		Concurrency:     20,
		ConcurrentRate:  5.0,
		Description:     "daily: fast incremental sync, one request per second",
	},
}

// ConfigFor returns the preset for a mode, falling back to daily.
func ConfigFor(mode enum.SyncMode) ModeConfig {
	if cfg, ok := modeConfigs[mode]; ok {
		return cfg
	}
	return modeConfigs[enum.SyncModeDaily]
}

// EstimateDuration predicts how long syncing n targets takes in a mode,
// assuming the rate limiter dominates per-target time.
func EstimateDuration(n int, mode enum.SyncMode) time.Duration {
	cfg := ConfigFor(mode)
	perTarget := time.Duration(float64(time.Second) / cfg.RatePerSecond)
	return time.Duration(n) * perTarget
}
