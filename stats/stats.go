// Package stats accumulates the diagnostic counters of a cleaning run and
// can persist them per batch as an Arrow IPC file for downstream QC.
package stats

import (
	"sort"
	"sync"
)

// Counters are batch-scoped diagnostics. They are observational only and
// never affect what the pipeline emits.
type Counters struct {
	FixedToHV      int64 // 0/x calls rewritten to x/x
	FixedToHET     int64 // x/x calls rewritten to 0/x
	FixedDP        int64 // DP values raised to sum(AD)
	NoCalls        int64 // calls forced to ./. by QC thresholds
	DroppedRecords int64 // records with no surviving variant call
}

// Add merges o into c.
func (c *Counters) Add(o Counters) {
	c.FixedToHV += o.FixedToHV
	c.FixedToHET += o.FixedToHET
	c.FixedDP += o.FixedDP
	c.NoCalls += o.NoCalls
	c.DroppedRecords += o.DroppedRecords
}

// Run collects per-batch counters from concurrent workers.
type Run struct {
	mu       sync.Mutex
	perBatch map[int]Counters
	total    Counters
}

func NewRun() *Run {
	return &Run{perBatch: make(map[int]Counters)}
}

// Record stores the counters of one finished batch.
func (r *Run) Record(batch int, c Counters) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perBatch[batch] = c
	r.total.Add(c)
}

// Total returns the merged run-wide counters.
func (r *Run) Total() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Batches returns the recorded batch numbers in ascending order.
func (r *Run) Batches() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	nums := make([]int, 0, len(r.perBatch))
	for n := range r.perBatch {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Batch returns the counters recorded for one batch.
func (r *Run) Batch(n int) Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perBatch[n]
}
