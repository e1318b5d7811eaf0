package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/yanun0323/logs"
)

const (
	defaultBatchSize     = 500
	defaultRecencyWindow = 7 * 24 * time.Hour
	// FailureSampleSize bounds the failure detail exposed in summaries.
	FailureSampleSize = 10
)

// Outcome is what a single-target sync reports back.
type Outcome struct {
	Count int
	Mode  string
}

// TargetSyncer syncs one target through the rate-limited single-item path.
type TargetSyncer interface {
	SyncTarget(ctx context.Context, code string, forceFull bool) (Outcome, error)
}

// ProgressFunc receives per-item progress while a batch executes.
type ProgressFunc func(percent float64, message string)

// Config tunes the manager.
type Config struct {
	// BatchSize is the max items per batch. Default 500.
	BatchSize int
	// RecencyWindow is the independent skip threshold applied per item at
	// execution time, distinct from the plan-time freshness threshold.
	// Default 7 days.
	RecencyWindow time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = defaultRecencyWindow
	}
	return cfg
}

// Manager builds prioritized batch plans and executes them item by item,
// publishing progress after every item.
type Manager struct {
	cfg      Config
	syncer   TargetSyncer
	progress *ProgressStore
}

// NewManager wires a manager to its single-target sync path and progress store.
func NewManager(cfg Config, syncer TargetSyncer, progress *ProgressStore) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		syncer:   syncer,
		progress: progress,
	}
}

// CreateBatches plans batches over targets. threshold is the plan-time
// skip-if-fresh cutoff (typically the latest trade date); it is ignored when
// forceFull is set. Returns the batches and the id prefix used.
func (m *Manager) CreateBatches(targets []Item, threshold time.Time, forceFull bool, prefix string) ([]Batch, string) {
	if prefix == "" {
		prefix = time.Now().Format("20060102_150405")
	}
	batches := Plan(targets, threshold, forceFull, m.cfg.BatchSize, prefix)
	logs.Infof("planned %d batches of up to %d targets (prefix %s)", len(batches), m.cfg.BatchSize, prefix)
	return batches, prefix
}

// ItemFailure is one failed target inside a batch run.
type ItemFailure struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// ItemSuccess is one synced target inside a batch run.
type ItemSuccess struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Count int    `json:"count"`
	Mode  string `json:"sync_mode"`
}

// Result summarizes one executed batch.
type Result struct {
	BatchID      string
	BatchIndex   int
	TotalBatches int
	Success      bool
	Message      string
	Total        int
	Skipped      int
	Succeeded    []ItemSuccess
	Failed       []ItemFailure
}

// FailedSample returns at most FailureSampleSize failure details.
func (r Result) FailedSample() []ItemFailure {
	if len(r.Failed) <= FailureSampleSize {
		return r.Failed
	}
	return r.Failed[:FailureSampleSize]
}

// ExecuteBatch runs one batch synchronously, item by item, in plan order.
//
// Each item is re-checked against the recency window before syncing: a target
// updated between plan creation and execution is skipped rather than synced
// twice. Per-item failures are recorded and execution continues; the batch
// always reaches a terminal status. Progress is published to the store after
// every item so callers other than the one blocked here can poll it.
func (m *Manager) ExecuteBatch(ctx context.Context, b Batch, forceFull bool, onProgress ProgressFunc) Result {
	total := len(b.Items)
	logs.Infof("executing batch %s with %d targets", b.ID, total)

	rec := Progress{
		BatchID:      b.ID,
		BatchIndex:   b.Index,
		TotalBatches: b.TotalBatches,
		TotalCount:   total,
		Status:       BatchStatusRunning,
		StartedAt:    time.Now(),
		Message:      fmt.Sprintf("starting batch %d/%d", b.Index, b.TotalBatches),
	}
	m.progress.Put(rec)

	var (
		succeeded []ItemSuccess
		failed    []ItemFailure
		skipped   int
	)
	recencyCutoff := time.Now().Add(-m.cfg.RecencyWindow)

	for i, item := range b.Items {
		percent := float64(i) / float64(total) * 100
		message := fmt.Sprintf("[batch %d/%d] [%d/%d] syncing %s %s", b.Index, b.TotalBatches, i+1, total, item.Code, item.Name)
		if onProgress != nil {
			onProgress(percent, message)
		}

		rec.CurrentIndex = i + 1
		rec.CurrentItem = &item
		rec.Percent = round2(percent)
		rec.Message = message
		m.progress.Put(rec)

		logs.Info(message)

		// recency safety net: skip items updated since the plan was built
		if !forceFull && !item.Freshness.IsZero() && item.Freshness.After(recencyCutoff) {
			logs.Infof("skip %s: already fresh (%s)", item.Code, item.Freshness.Format(time.DateOnly))
			skipped++
			rec.Skipped = skipped
			continue
		}

		outcome, err := m.syncer.SyncTarget(ctx, item.Code, forceFull)
		if err != nil {
			logs.Errorf("sync %s failed: %v", item.Code, err)
			failed = append(failed, ItemFailure{Code: item.Code, Name: item.Name, Error: err.Error()})
			rec.Failed = len(failed)
			continue
		}
		succeeded = append(succeeded, ItemSuccess{Code: item.Code, Name: item.Name, Count: outcome.Count, Mode: outcome.Mode})
		rec.Succeeded = len(succeeded)
	}

	status := BatchStatusCompleted
	if len(failed) > 0 {
		status = BatchStatusCompletedWithErrors
	}

	rec.CurrentIndex = total
	rec.CurrentItem = nil
	rec.Percent = 100
	rec.Status = status
	rec.Succeeded = len(succeeded)
	rec.Failed = len(failed)
	rec.Skipped = skipped
	rec.EndedAt = time.Now()
	rec.Message = fmt.Sprintf("batch %d done: %d succeeded, %d failed, %d skipped", b.Index, len(succeeded), len(failed), skipped)
	m.progress.Put(rec)

	logs.Infof("batch %s done: %d succeeded, %d failed, %d skipped", b.ID, len(succeeded), len(failed), skipped)
	return Result{
		BatchID:      b.ID,
		BatchIndex:   b.Index,
		TotalBatches: b.TotalBatches,
		Success:      len(failed) == 0,
		Message:      rec.Message,
		Total:        total,
		Skipped:      skipped,
		Succeeded:    succeeded,
		Failed:       failed,
	}
}

// ExecutionProgress returns the live progress for a batch id; ok is false
// when the batch is unknown.
func (m *Manager) ExecutionProgress(batchID string) (Progress, bool) {
	return m.progress.Get(batchID)
}

// FreshnessSummary is a freshly computed overview of how stale the target set
// is, independent of any live batch.
type FreshnessSummary struct {
	Total       int    `json:"total_stocks"`
	NeedUpdate  int    `json:"need_update"`
	UpToDate    int    `json:"up_to_date"`
	NeedSample  []Item `json:"need_update_list"`
	FreshSample []Item `json:"up_to_date_list"`
}

// SyncProgress summarizes target freshness against threshold; the sample
// lists are bounded to FailureSampleSize entries.
func (m *Manager) SyncProgress(targets []Item, threshold time.Time) FreshnessSummary {
	sum := FreshnessSummary{Total: len(targets)}
	for _, it := range targets {
		if it.Freshness.IsZero() || (!threshold.IsZero() && it.Freshness.Before(threshold)) {
			sum.NeedUpdate++
			if len(sum.NeedSample) < FailureSampleSize {
				sum.NeedSample = append(sum.NeedSample, it)
			}
			continue
		}
		sum.UpToDate++
		if len(sum.FreshSample) < FailureSampleSize {
			sum.FreshSample = append(sum.FreshSample, it)
		}
	}
	return sum
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
