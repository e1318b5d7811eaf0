package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/batch"
	"main/internal/model/enum"
	"main/internal/ops"
	"main/internal/rank"
	"main/internal/store"
	"main/internal/sync"
	"main/internal/task"
	"main/pkg/conn"
	"main/pkg/provider/eastmoney"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	job := flag.String("job", "kline", "Job to run: stock-list|kline|high-perf|batch|rank")
	mode := flag.String("mode", "", "Sync mode override: init|daily")
	limit := flag.Int("limit", 0, "Max targets to sync (0=all)")
	forceFull := flag.Bool("force-full", false, "Ignore freshness markers and re-fetch full history")
	period := flag.String("period", "week", "Ranking period: week|month")
	topN := flag.Int("top", 20, "Ranking size")
	flag.Parse()

	if err := run(*configPath, *job, *mode, *limit, *forceFull, *period, *topN); err != nil {
		logs.Errorf("syncd: %v", err)
		os.Exit(1)
	}
}

func run(configPath, job, modeOverride string, limit int, forceFull bool, period string, topN int) error {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	mode := loaded.Mode
	if modeOverride != "" {
		if mode, err = enum.ParseSyncMode(modeOverride); err != nil {
			return err
		}
	}
	if limit == 0 {
		limit = loaded.SyncLimit
	}

	if loaded.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: loaded.Profiling.AppName,
			ServerAddress:   loaded.Profiling.ServerAddress,
		})
		if err != nil {
			return errors.Wrap(err, "start profiler")
		}
		defer func() { _ = profiler.Stop() }()
	}

	client, err := conn.New(loaded.Database)
	if err != nil {
		return errors.Wrap(err, "connect postgres")
	}
	defer func() { _ = client.Close() }()

	st := store.New(client.DB())
	if err := st.AutoMigrate(); err != nil {
		return errors.Wrap(err, "migrate")
	}

	svc := sync.NewService(st, eastmoney.New(nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sys.Shutdown()
		cancel()
	}()

	switch job {
	case "rank":
		return runRank(ctx, st, period, topN)
	case "batch":
		return runBatches(ctx, svc, loaded, mode, limit)
	default:
		return runQueued(ctx, svc, loaded, job, mode, limit, forceFull)
	}
}

// runQueued drives one job through the task queue and mirrors its progress
// to the log until it reaches a terminal state.
func runQueued(ctx context.Context, svc *sync.Service, loaded ops.Loaded, job string, mode enum.SyncMode, limit int, forceFull bool) error {
	kind, params, err := jobSpec(job, mode, limit, forceFull)
	if err != nil {
		return err
	}

	queueCfg := loaded.Queue
	if queueCfg.RatePerSecond == 0 {
		modeCfg := sync.ConfigFor(mode)
		queueCfg.RatePerSecond = modeCfg.RatePerSecond
		queueCfg.Burst = modeCfg.Burst
	}
	queue := task.NewQueue(queueCfg)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = queue.Stop(stopCtx)
	}()

	reg := task.NewRegistry()
	if err := svc.RegisterJobs(reg); err != nil {
		return err
	}

	id, err := queue.SubmitKind(reg, kind, params, true)
	if err != nil {
		return err
	}
	logs.Infof("submitted %s as task %s", kind, id)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	lastMsg := ""
	cancelled := false
	for {
		snap, ok := queue.Task(id)
		if !ok {
			return errors.New("task disappeared from queue")
		}
		if msg := fmt.Sprintf("%.1f%% %s", snap.Progress, snap.Message); msg != lastMsg {
			logs.Infof("%s: %s", kind, msg)
			lastMsg = msg
		}
		if snap.Status.IsTerminal() {
			if snap.Status != task.StatusSuccess {
				return errors.Errorf("task %s: %s", snap.Status, snap.Error)
			}
			logs.Infof("%s finished: %v", kind, snap.Result)
			return nil
		}

		select {
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				queue.Cancel(id)
				logs.Warn("shutdown requested, cancelling task")
			}
			<-ticker.C
		case <-ticker.C:
		}
	}
}

func jobSpec(job string, mode enum.SyncMode, limit int, forceFull bool) (string, task.Params, error) {
	switch job {
	case "stock-list":
		return sync.JobSyncStockList, nil, nil
	case "kline":
		return sync.JobSyncKline, task.Params{"limit": limit, "force_full": forceFull}, nil
	case "high-perf":
		return sync.JobHighPerfSync, task.Params{"mode": mode.String(), "limit": limit}, nil
	default:
		return "", nil, errors.Errorf("unknown job: %s", job)
	}
}

// runBatches plans a full batch sync and executes the batches in order.
func runBatches(ctx context.Context, svc *sync.Service, loaded ops.Loaded, mode enum.SyncMode, limit int) error {
	modeCfg := sync.ConfigFor(mode)

	targets, err := svc.Targets(ctx)
	if err != nil {
		return err
	}
	if limit > 0 && limit < len(targets) {
		batch.SortStalestFirst(targets)
		targets = targets[:limit]
	}

	manager := batch.NewManager(batch.Config{
		BatchSize:     loaded.Batch.Size,
		RecencyWindow: time.Duration(loaded.Batch.RecencyWindowDays) * 24 * time.Hour,
	}, svc, batch.NewProgressStore())

	threshold := svc.PlanThreshold(ctx)
	batches, prefix := manager.CreateBatches(targets, threshold, modeCfg.ForceFull, "")
	if len(batches) == 0 {
		logs.Info("all targets are fresh, nothing to sync")
		return nil
	}
	logs.Infof("planned %d batches (prefix %s), estimated %s",
		len(batches), prefix, sync.EstimateDuration(len(targets), mode))

	for _, b := range batches {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result := manager.ExecuteBatch(ctx, b, modeCfg.ForceFull, func(pct float64, msg string) {
			logs.Infof("batch %s: %.1f%% %s", b.ID, pct, msg)
		})
		logs.Infof("batch %s done: %s (%d ok, %d failed, %d skipped)",
			result.BatchID, result.Message, len(result.Succeeded), len(result.Failed), result.Skipped)
		for _, f := range result.FailedSample() {
			logs.Warnf("batch %s failure: %s: %s", result.BatchID, f.Code, f.Error)
		}
	}
	return nil
}

func runRank(ctx context.Context, st *store.Store, period string, topN int) error {
	p := rank.Period(period)
	if p != rank.PeriodWeek && p != rank.PeriodMonth {
		return errors.Errorf("unknown period: %s", period)
	}

	report, err := rank.New(st).TopPerformers(ctx, p, topN)
	if err != nil {
		return err
	}
	logs.Infof("top performers for %s ending %s:", report.Period, report.PeriodEnd.Format(time.DateOnly))
	for i, perf := range report.Performers {
		logs.Infof("%2d. %-10s %-12s %+.2f%% (%.2f -> %.2f)",
			i+1, perf.TsCode, perf.Name, perf.ChangePct, perf.PrevClose, perf.Close)
	}
	return nil
}
