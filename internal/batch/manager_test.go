package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func day(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func targets() []Item {
	return []Item{
		{Code: "000001.SZ", Name: "PAB", Freshness: day("2026-08-20")},
		{Code: "000002.SZ", Name: "Vanke", Freshness: day("2026-08-27")},
		{Code: "600000.SH", Name: "SPDB", Freshness: time.Time{}}, // never synced
		{Code: "600036.SH", Name: "CMB", Freshness: day("2026-08-10")},
		{Code: "300750.SZ", Name: "CATL", Freshness: day("2026-08-27")},
	}
}

func TestPlanStalestFirstDeterministic(t *testing.T) {
	threshold := day("2026-08-27")

	a := Plan(targets(), threshold, false, 2, "plan1")
	b := Plan(targets(), threshold, false, 2, "plan1")

	require.Len(t, a, 2)
	require.Len(t, b, 2)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID, "same inputs and prefix must reproduce the ids")
		assert.Equal(t, a[i].Items, b[i].Items, "same inputs must reproduce the item order")
	}

	assert.Equal(t, "plan1_1", a[0].ID)
	assert.Equal(t, "plan1_2", a[1].ID)
	assert.Equal(t, 1, a[0].Index)
	assert.Equal(t, 2, a[0].TotalBatches)

	// fresh targets (>= threshold) dropped, remainder ordered stalest first
	var codes []string
	for _, bt := range a {
		for _, it := range bt.Items {
			codes = append(codes, it.Code)
		}
	}
	assert.Equal(t, []string{"600000.SH", "600036.SH", "000001.SZ"}, codes)
}

func TestPlanForceFullKeepsFresh(t *testing.T) {
	batches := Plan(targets(), day("2026-08-27"), true, 10, "full")
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Items, 5, "force full ignores the freshness filter")
}

func TestPlanNoDuplicatesNoOmissions(t *testing.T) {
	threshold := day("2026-08-27")
	batches := Plan(targets(), threshold, false, 1, "p")

	seen := map[string]int{}
	for _, b := range batches {
		for _, it := range b.Items {
			seen[it.Code]++
		}
	}
	for _, it := range targets() {
		if !it.Freshness.IsZero() && !it.Freshness.Before(threshold) {
			assert.NotContains(t, seen, it.Code)
			continue
		}
		assert.Equalf(t, 1, seen[it.Code], "target %s", it.Code)
	}
}

type fakeSyncer struct {
	calls  []string
	failOn map[string]error
}

func (f *fakeSyncer) SyncTarget(ctx context.Context, code string, forceFull bool) (Outcome, error) {
	f.calls = append(f.calls, code)
	if err, ok := f.failOn[code]; ok {
		return Outcome{}, err
	}
	return Outcome{Count: 3, Mode: "incremental"}, nil
}

func staleItems(n int) []Item {
	old := time.Now().Add(-30 * 24 * time.Hour)
	items := make([]Item, 0, n)
	for i := range n {
		items = append(items, Item{
			Code:      string(rune('a' + i)),
			Name:      "t" + string(rune('a'+i)),
			Freshness: old,
		})
	}
	return items
}

func TestExecuteBatchPartialFailure(t *testing.T) {
	items := staleItems(5)
	syncer := &fakeSyncer{failOn: map[string]error{items[2].Code: errors.New("provider timeout")}}
	mgr := NewManager(Config{}, syncer, NewProgressStore())

	b := Batch{ID: "p_1", Index: 1, TotalBatches: 1, Items: items, Status: BatchStatusPending}
	res := mgr.ExecuteBatch(t.Context(), b, false, nil)

	assert.False(t, res.Success)
	assert.Equal(t, 4, len(res.Succeeded))
	assert.Equal(t, 1, len(res.Failed))
	assert.Equal(t, "provider timeout", res.Failed[0].Error)

	prog, ok := mgr.ExecutionProgress("p_1")
	require.True(t, ok)
	assert.Equal(t, BatchStatusCompletedWithErrors, prog.Status)
	assert.Equal(t, 100.0, prog.Percent)
	assert.Equal(t, 4, prog.Succeeded)
	assert.Equal(t, 1, prog.Failed)
	assert.False(t, prog.EndedAt.IsZero())
}

func TestExecuteBatchRecencyRecheck(t *testing.T) {
	items := staleItems(2)
	items[1].Freshness = time.Now().Add(-24 * time.Hour) // synced yesterday

	syncer := &fakeSyncer{}
	mgr := NewManager(Config{RecencyWindow: 7 * 24 * time.Hour}, syncer, NewProgressStore())

	b := Batch{ID: "r_1", Index: 1, TotalBatches: 1, Items: items}
	res := mgr.ExecuteBatch(t.Context(), b, false, nil)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{items[0].Code}, syncer.calls, "recently synced item must be skipped")
}

func TestExecuteBatchForceFullSkipsRecheck(t *testing.T) {
	items := staleItems(1)
	items[0].Freshness = time.Now() // fully fresh

	syncer := &fakeSyncer{}
	mgr := NewManager(Config{}, syncer, NewProgressStore())

	res := mgr.ExecuteBatch(t.Context(), Batch{ID: "f_1", Index: 1, TotalBatches: 1, Items: items}, true, nil)
	assert.Zero(t, res.Skipped)
	assert.Len(t, syncer.calls, 1)
}

func TestExecuteBatchProgressCallback(t *testing.T) {
	var percents []float64
	syncer := &fakeSyncer{}
	mgr := NewManager(Config{}, syncer, NewProgressStore())

	mgr.ExecuteBatch(t.Context(), Batch{ID: "c_1", Index: 1, TotalBatches: 1, Items: staleItems(4)}, false,
		func(percent float64, message string) {
			percents = append(percents, percent)
		})

	assert.Equal(t, []float64{0, 25, 50, 75}, percents)
}

func TestExecutionProgressUnknownBatch(t *testing.T) {
	mgr := NewManager(Config{}, &fakeSyncer{}, NewProgressStore())
	_, ok := mgr.ExecutionProgress("nope")
	assert.False(t, ok, "unknown batch is not-found, not an error")
}

func TestSyncProgressSummary(t *testing.T) {
	mgr := NewManager(Config{}, &fakeSyncer{}, NewProgressStore())
	sum := mgr.SyncProgress(targets(), day("2026-08-27"))

	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 3, sum.NeedUpdate)
	assert.Equal(t, 2, sum.UpToDate)
	assert.LessOrEqual(t, len(sum.NeedSample), FailureSampleSize)
}

func TestFailedSampleBounded(t *testing.T) {
	res := Result{}
	for range 25 {
		res.Failed = append(res.Failed, ItemFailure{Code: "x"})
	}
	assert.Len(t, res.FailedSample(), FailureSampleSize)
}
