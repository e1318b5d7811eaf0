package sync

import (
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model/enum"
	"main/internal/task"
)

func TestHighPerformanceSync(t *testing.T) {
	store := newFakeStore()
	seedStocks(store, "600000.SH", "000001.SZ", "300750.SZ", "688111.SH")
	provider := &fakeProvider{barsPerDay: 3}
	s := testService(store, provider)

	var (
		mu       stdsync.Mutex
		percents []float64
	)
	summary, err := s.HighPerformanceSync(t.Context(), enum.SyncModeDaily, nil,
		func(pct float64, _ string) {
			mu.Lock()
			percents = append(percents, pct)
			mu.Unlock()
		}, 0)
	require.NoError(t, err)

	assert.Equal(t, "daily", summary.Mode)
	assert.Equal(t, 4, summary.Targets)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 12, summary.Rows)
	assert.Equal(t, 12, store.klineCount())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, percents, 4)
	assert.Equal(t, float64(100), percents[len(percents)-1])
}

func TestHighPerformanceSyncCollectsFailures(t *testing.T) {
	store := newFakeStore()
	seedStocks(store, "600000.SH", "000001.SZ", "300750.SZ")
	provider := &fakeProvider{barsPerDay: 1, fail: map[string]bool{"000001": true}}
	s := testService(store, provider)

	summary, err := s.HighPerformanceSync(t.Context(), enum.SyncModeDaily, nil, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.FailedSample, 1)
	assert.Contains(t, summary.FailedSample[0], "000001.SZ")
}

func TestHighPerformanceSyncHonorsLimit(t *testing.T) {
	store := newFakeStore()
	seedStocks(store, "600000.SH", "000001.SZ", "300750.SZ")
	store.latest["600000.SH"] = day(1)
	store.latest["000001.SZ"] = day(2)
	// 300750.SZ is stalest and must survive the cut

	provider := &fakeProvider{barsPerDay: 1}
	s := testService(store, provider)

	summary, err := s.HighPerformanceSync(t.Context(), enum.SyncModeDaily, nil, nil, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Targets)
	calls := provider.klineCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "300750", calls[0].symbol)
}

func TestHighPerformanceSyncEmpty(t *testing.T) {
	s := testService(newFakeStore(), &fakeProvider{})

	summary, err := s.HighPerformanceSync(t.Context(), enum.SyncModeDaily, nil, nil, 0)
	require.NoError(t, err)
	assert.Zero(t, summary.Targets)
	assert.Zero(t, summary.Rows)
}

func TestHighPerformanceSyncSkipsAfterCancel(t *testing.T) {
	store := newFakeStore()
	seedStocks(store, "600000.SH", "000001.SZ")
	provider := &fakeProvider{barsPerDay: 1}
	s := testService(store, provider)

	ctrl := task.NewControl()
	ctrl.RequestCancel()

	summary, err := s.HighPerformanceSync(t.Context(), enum.SyncModeDaily, ctrl, nil, 0)
	require.NoError(t, err)
	assert.Zero(t, summary.Succeeded)
	assert.Empty(t, provider.klineCalls())
}

func TestFetchWindowDaily(t *testing.T) {
	provider := &fakeProvider{barsPerDay: 1}
	s := testService(newFakeStore(), provider)
	cfg := ConfigFor(enum.SyncModeDaily)

	// stale beyond the window: clamp to the trailing window
	_, err := s.fetchWindow(t.Context(), "600000.SH", day(30), cfg)
	require.NoError(t, err)
	// fresher than the window: resume right after the latest bar
	_, err = s.fetchWindow(t.Context(), "000001.SZ", day(1), cfg)
	require.NoError(t, err)

	calls := provider.klineCalls()
	require.Len(t, calls, 2)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -cfg.FetchWindowDays), calls[0].start, time.Second)
	assert.WithinDuration(t, day(1).AddDate(0, 0, 1), calls[1].start, time.Second)
}

func TestFetchWindowInitForcesFullHistory(t *testing.T) {
	provider := &fakeProvider{barsPerDay: 1}
	s := testService(newFakeStore(), provider)

	_, err := s.fetchWindow(t.Context(), "600000.SH", day(1), ConfigFor(enum.SyncModeInit))
	require.NoError(t, err)

	calls := provider.klineCalls()
	require.Len(t, calls, 1)
	assert.WithinDuration(t, time.Now().AddDate(-HistoryYears, 0, 0), calls[0].start, time.Minute)
}
