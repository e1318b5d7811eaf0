package sync

import (
	"context"
	"fmt"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/batch"
	"main/internal/limiter"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/task"
)

// Job kinds accepted by SubmitKind.
const (
	JobSyncStockList = "sync_stock_list"
	JobSyncKline     = "sync_kline"
	JobHighPerfSync  = "high_perf_sync"
)

// RegisterJobs binds the sync job kinds to their handlers.
func (s *Service) RegisterJobs(reg *task.Registry) error {
	if err := reg.Register(JobSyncStockList, s.stockListJob); err != nil {
		return err
	}
	if err := reg.Register(JobSyncKline, s.klineJob); err != nil {
		return err
	}
	return reg.Register(JobHighPerfSync, s.highPerfJob)
}

func (s *Service) stockListJob(ctx context.Context, t *task.Task, _ *limiter.Bucket, _ task.Params) error {
	summary, err := s.SyncStockList(ctx)
	if err != nil {
		return err
	}
	t.SetProgress(100, summary.Message)
	t.SetResult(map[string]any{"count": summary.Count})
	return nil
}

// klineJob walks syncable stocks stalest-first, one SyncTarget per item
// behind the queue's shared rate limit. Cancellation stops between items,
// pause parks the loop.
func (s *Service) klineJob(ctx context.Context, t *task.Task, lim *limiter.Bucket, params task.Params) error {
	limit := paramInt(params, "limit", 0)
	forceFull := paramBool(params, "force_full")

	targets, err := s.Targets(ctx)
	if err != nil {
		return err
	}
	batch.SortStalestFirst(targets)
	if limit > 0 && limit < len(targets) {
		targets = targets[:limit]
	}
	if len(targets) == 0 {
		t.SetProgress(100, "no syncable stocks")
		return nil
	}

	var (
		total     int
		succeeded int
		failed    int
		samples   []string
	)
	for i, target := range targets {
		if t.Control().Cancelled() {
			break
		}
		if err := t.Control().WaitIfPaused(ctx); err != nil {
			return err
		}
		if err := lim.Acquire(ctx); err != nil {
			return err
		}

		out, err := s.SyncTarget(ctx, target.Code, forceFull)
		if err != nil {
			failed++
			if len(samples) < FailureSampleSize {
				samples = append(samples, fmt.Sprintf("%s: %v", target.Code, err))
			}
			logs.Warnf("kline sync failed for %s: %v", target.Code, err)
		} else {
			succeeded++
			total += out.Count
		}

		pct := float64(i+1) / float64(len(targets)) * 100
		t.SetProgress(pct, fmt.Sprintf("%s (%d/%d)", target.Name, i+1, len(targets)))
	}

	t.SetResult(map[string]any{
		"rows":      total,
		"succeeded": succeeded,
		"failed":    failed,
		"samples":   samples,
	})
	s.logSync(ctx, "kline_daily", succeeded, failed,
		fmt.Sprintf("synced %d stocks, %d rows, %d failed", succeeded, total, failed))
	if failed > 0 && succeeded == 0 {
		return errors.Errorf("all %d targets failed", failed)
	}
	return nil
}

func (s *Service) highPerfJob(ctx context.Context, t *task.Task, _ *limiter.Bucket, params task.Params) error {
	mode, err := enum.ParseSyncMode(paramString(params, "mode", enum.SyncModeDaily.String()))
	if err != nil {
		return err
	}
	limit := paramInt(params, "limit", 0)

	summary, err := s.HighPerformanceSync(ctx, mode, t.Control(), func(pct float64, msg string) {
		t.SetProgress(pct, msg)
	}, limit)
	if err != nil {
		return err
	}
	t.SetResult(map[string]any{
		"rows":      summary.Rows,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"samples":   summary.FailedSample,
	})
	return nil
}

// FailureSampleSize bounds failure detail carried in results and sync logs.
const FailureSampleSize = 10

func (s *Service) logSync(ctx context.Context, dataType string, succeeded, failed int, msg string) {
	status := model.SyncLogStatusSuccess
	switch {
	case succeeded == 0 && failed > 0:
		status = model.SyncLogStatusFailed
	case failed > 0:
		status = model.SyncLogStatusPartial
	}
	if err := s.store.AppendSyncLog(ctx, model.SyncLog{
		DataType: dataType,
		Status:   status,
		Message:  msg,
	}); err != nil {
		logs.Warnf("append sync log: %v", err)
	}
}

func paramInt(p task.Params, key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func paramBool(p task.Params, key string) bool {
	v, _ := p[key].(bool)
	return v
}

func paramString(p task.Params, key, def string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return def
}
