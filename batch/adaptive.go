package batch

import (
	"sync"
	"time"
)

// AdaptiveSizer retunes the batch size from observed wall-clock time per
// group of finished batches, doubling when a group completes faster than the
// low target and halving when it overshoots the high target, clamped to
// [Min, Max]. Purely a throughput/memory knob: correctness never depends on
// the sizes it picks.
type AdaptiveSizer struct {
	mu       sync.Mutex
	size     int
	min, max int
	group    int // batches per tuning decision
	seen     int
	mark     time.Time

	low, high time.Duration
}

// NewAdaptiveSizer starts at start lines per batch, tuning every group
// batches toward a group wall-clock inside [low, high].
func NewAdaptiveSizer(start, min, max, group int, low, high time.Duration) *AdaptiveSizer {
	if min < 1 {
		min = 1
	}
	if start < min {
		start = min
	}
	if start > max {
		start = max
	}
	return &AdaptiveSizer{size: start, min: min, max: max, group: group, low: low, high: high}
}

// Size returns the current batch size. Pass it as the Batcher size hook.
func (s *AdaptiveSizer) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// BatchDone records one finished batch. Pass it as Config.OnBatchDone.
func (s *AdaptiveSizer) BatchDone() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mark.IsZero() {
		s.mark = time.Now()
	}

	s.seen++
	if s.seen < s.group {
		return
	}

	elapsed := time.Since(s.mark)
	switch {
	case elapsed < s.low && s.size*2 <= s.max:
		s.size *= 2
	case elapsed > s.high && s.size/2 >= s.min:
		s.size /= 2
	}

	s.seen = 0
	s.mark = time.Now()
}
