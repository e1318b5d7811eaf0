// Package batch plans and drives chunked, prioritized sync runs over a large
// set of targets, with pollable per-batch progress.
package batch

import (
	"fmt"
	"sort"
	"time"
)

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchStatusPending             BatchStatus = "pending"
	BatchStatusRunning             BatchStatus = "running"
	BatchStatusCompleted           BatchStatus = "completed"
	BatchStatusCompletedWithErrors BatchStatus = "completed_with_errors"
)

// Item is one sync target annotated with its freshness marker: the date of
// the most recent successfully synced bar, zero when the target has no data.
type Item struct {
	Code      string
	Name      string
	Freshness time.Time
}

// Batch is one immutable chunk of a prioritized execution plan.
type Batch struct {
	ID           string
	Index        int
	TotalBatches int
	Items        []Item
	Status       BatchStatus
	CreatedAt    time.Time
}

// SortStalestFirst orders items by freshness ascending, in place. Zero
// freshness means never synced and goes to the front.
func SortStalestFirst(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Freshness.Before(items[j].Freshness)
	})
}

// Plan slices targets into batches of at most size items, stalest first.
//
// Targets whose freshness already reaches threshold are skipped unless
// forceFull is set. Ids are deterministic for a fixed prefix
// ({prefix}_{seq}), so a plan can be rebuilt later with matching ids.
func Plan(targets []Item, threshold time.Time, forceFull bool, size int, prefix string) []Batch {
	if size <= 0 {
		size = defaultBatchSize
	}
	if prefix == "" {
		prefix = time.Now().Format("20060102_150405")
	}

	items := make([]Item, 0, len(targets))
	for _, it := range targets {
		if !forceFull && !threshold.IsZero() && !it.Freshness.IsZero() && !it.Freshness.Before(threshold) {
			continue
		}
		items = append(items, it)
	}

	SortStalestFirst(items)

	total := (len(items) + size - 1) / size
	batches := make([]Batch, 0, total)
	now := time.Now()
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		seq := i/size + 1
		batches = append(batches, Batch{
			ID:           fmt.Sprintf("%s_%d", prefix, seq),
			Index:        seq,
			TotalBatches: total,
			Items:        items[i:end],
			Status:       BatchStatusPending,
			CreatedAt:    now,
		})
	}
	return batches
}
