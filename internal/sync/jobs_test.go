package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/task"
)

func testQueue(t *testing.T) *task.Queue {
	t.Helper()
	q := task.NewQueue(task.Config{
		Workers:       2,
		RatePerSecond: 1000,
		Burst:         1000,
	})
	t.Cleanup(func() { _ = q.Stop(t.Context()) })
	return q
}

func waitTerminal(t *testing.T, q *task.Queue, id string) task.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok := q.Task(id)
		require.True(t, ok)
		if snap.Status.IsTerminal() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task never reached a terminal state")
	return task.Snapshot{}
}

func seedStocks(store *fakeStore, codes ...string) {
	for _, code := range codes {
		store.stocks = append(store.stocks, model.Stock{
			TsCode:   code,
			Symbol:   symbolOf(code),
			Name:     "stock " + code,
			IsActive: true,
		})
	}
}

func registered(t *testing.T, s *Service) *task.Registry {
	t.Helper()
	reg := task.NewRegistry()
	require.NoError(t, s.RegisterJobs(reg))
	return reg
}

func TestStockListJob(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{quotes: []Quote{
		{Symbol: "600000", Name: "PuFa Bank"},
		{Symbol: "000001", Name: "PingAn Bank"},
	}}
	s := testService(store, provider)
	q := testQueue(t)

	id, err := q.SubmitKind(registered(t, s), JobSyncStockList, nil, false)
	require.NoError(t, err)

	snap := waitTerminal(t, q, id)
	assert.Equal(t, task.StatusSuccess, snap.Status)
	assert.Equal(t, 2, snap.Result["count"])
	assert.Len(t, store.stocks, 2)
}

func TestKlineJobSyncsStalestFirst(t *testing.T) {
	store := newFakeStore()
	seedStocks(store, "600000.SH", "000001.SZ", "300750.SZ")
	store.latest["600000.SH"] = day(1)
	store.latest["000001.SZ"] = day(30)
	// 300750.SZ has no data, so it must go first

	provider := &fakeProvider{barsPerDay: 2}
	s := testService(store, provider)
	q := testQueue(t)

	id, err := q.SubmitKind(registered(t, s), JobSyncKline, nil, false)
	require.NoError(t, err)

	snap := waitTerminal(t, q, id)
	require.Equal(t, task.StatusSuccess, snap.Status)
	assert.Equal(t, 3, snap.Result["succeeded"])
	assert.Equal(t, 0, snap.Result["failed"])
	assert.Equal(t, float64(100), snap.Progress)

	calls := provider.klineCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, "300750", calls[0].symbol)
	assert.Equal(t, "000001", calls[1].symbol)
	assert.Equal(t, "600000", calls[2].symbol)

	require.Len(t, store.syncLogs, 1)
	assert.Equal(t, model.SyncLogStatusSuccess, store.syncLogs[0].Status)
}

func TestKlineJobPartialFailure(t *testing.T) {
	store := newFakeStore()
	seedStocks(store, "600000.SH", "000001.SZ")
	provider := &fakeProvider{barsPerDay: 1, fail: map[string]bool{"600000": true}}
	s := testService(store, provider)
	q := testQueue(t)

	id, err := q.SubmitKind(registered(t, s), JobSyncKline, nil, false)
	require.NoError(t, err)

	snap := waitTerminal(t, q, id)
	require.Equal(t, task.StatusSuccess, snap.Status)
	assert.Equal(t, 1, snap.Result["succeeded"])
	assert.Equal(t, 1, snap.Result["failed"])
	samples, ok := snap.Result["samples"].([]string)
	require.True(t, ok)
	require.Len(t, samples, 1)
	assert.Contains(t, samples[0], "600000.SH")

	require.Len(t, store.syncLogs, 1)
	assert.Equal(t, model.SyncLogStatusPartial, store.syncLogs[0].Status)
}

func TestKlineJobAllFailed(t *testing.T) {
	store := newFakeStore()
	seedStocks(store, "600000.SH")
	provider := &fakeProvider{fail: map[string]bool{"600000": true}}
	s := testService(store, provider)
	q := testQueue(t)

	id, err := q.SubmitKind(registered(t, s), JobSyncKline, nil, false)
	require.NoError(t, err)

	snap := waitTerminal(t, q, id)
	assert.Equal(t, task.StatusFailed, snap.Status)

	require.Len(t, store.syncLogs, 1)
	assert.Equal(t, model.SyncLogStatusFailed, store.syncLogs[0].Status)
}

func TestKlineJobHonorsLimit(t *testing.T) {
	store := newFakeStore()
	seedStocks(store, "600000.SH", "000001.SZ", "300750.SZ")
	provider := &fakeProvider{barsPerDay: 1}
	s := testService(store, provider)
	q := testQueue(t)

	id, err := q.SubmitKind(registered(t, s), JobSyncKline, task.Params{"limit": 2}, false)
	require.NoError(t, err)

	snap := waitTerminal(t, q, id)
	require.Equal(t, task.StatusSuccess, snap.Status)
	assert.Equal(t, 2, snap.Result["succeeded"])
	assert.Len(t, provider.klineCalls(), 2)
}

func TestHighPerfJobRejectsUnknownMode(t *testing.T) {
	s := testService(newFakeStore(), &fakeProvider{})
	q := testQueue(t)

	id, err := q.SubmitKind(registered(t, s), JobHighPerfSync, task.Params{"mode": "hourly"}, false)
	require.NoError(t, err)

	snap := waitTerminal(t, q, id)
	assert.Equal(t, task.StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "unknown sync mode")
}

func TestHighPerfJob(t *testing.T) {
	store := newFakeStore()
	seedStocks(store, "600000.SH", "000001.SZ")
	provider := &fakeProvider{barsPerDay: 2}
	s := testService(store, provider)
	q := testQueue(t)

	id, err := q.SubmitKind(registered(t, s), JobHighPerfSync,
		task.Params{"mode": "daily"}, false)
	require.NoError(t, err)

	snap := waitTerminal(t, q, id)
	require.Equal(t, task.StatusSuccess, snap.Status)
	assert.Equal(t, 2, snap.Result["succeeded"])
	assert.Equal(t, 4, snap.Result["rows"])
}
