package mempool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// evictionWindow is the maximum time a pending observation is tracked
// before being dropped unconfirmed (spec §4.12).
const evictionWindow = 2 * time.Minute

// ConfirmationTracker records when a transaction was first observed
// pending and reports its mempool-to-block lead time once mined (spec
// §4.12).
type ConfirmationTracker struct {
	mu      sync.Mutex
	pending map[common.Hash]time.Time
	leadTimes []time.Duration
}

func NewConfirmationTracker() *ConfirmationTracker {
	return &ConfirmationTracker{pending: make(map[common.Hash]time.Time)}
}

// Observe records the first-seen time for a pending transaction hash. A
// repeat observation (the same tx re-broadcast or re-gossiped) does not
// reset the clock.
func (t *ConfirmationTracker) Observe(txHash common.Hash, seenAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.pending[txHash]; !exists {
		t.pending[txHash] = seenAt
	}
}

// Confirm reports the lead time for a transaction that was seen pending
// and has now been mined, and stops tracking it. Returns ok=false if the
// hash was never observed (or was already evicted).
func (t *ConfirmationTracker) Confirm(txHash common.Hash, minedAt time.Time) (leadTime time.Duration, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seenAt, exists := t.pending[txHash]
	if !exists {
		return 0, false
	}
	delete(t.pending, txHash)
	leadTime = minedAt.Sub(seenAt)
	if leadTime < 0 {
		leadTime = 0
	}
	t.leadTimes = append(t.leadTimes, leadTime)
	return leadTime, true
}

// Evict drops any pending observation older than the 2-minute window as of
// now, returning how many were dropped (spec §4.12).
func (t *ConfirmationTracker) Evict(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := 0
	for hash, seenAt := range t.pending {
		if now.Sub(seenAt) > evictionWindow {
			delete(t.pending, hash)
			dropped++
		}
	}
	return dropped
}

// PendingCount reports how many transactions are currently tracked as
// pending.
func (t *ConfirmationTracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stats summarizes lead-time distribution stats for reporting (spec
// §4.12's "median/mean" requirement).
type Stats struct {
	Count  int
	Mean   time.Duration
	Median time.Duration
	Min    time.Duration
	Max    time.Duration
}

func (t *ConfirmationTracker) Stats() Stats {
	t.mu.Lock()
	samples := make([]time.Duration, len(t.leadTimes))
	copy(samples, t.leadTimes)
	t.mu.Unlock()

	if len(samples) == 0 {
		return Stats{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	var total time.Duration
	for _, d := range samples {
		total += d
	}
	mean := total / time.Duration(len(samples))

	var median time.Duration
	mid := len(samples) / 2
	if len(samples)%2 == 0 {
		median = (samples[mid-1] + samples[mid]) / 2
	} else {
		median = samples[mid]
	}

	return Stats{
		Count:  len(samples),
		Mean:   mean,
		Median: median,
		Min:    samples[0],
		Max:    samples[len(samples)-1],
	}
}

// String renders stats as one plain key=value log line.
func (s Stats) String() string {
	if s.Count == 0 {
		return "no confirmations observed yet"
	}
	return fmt.Sprintf("n=%d mean=%s median=%s min=%s max=%s", s.Count, s.Mean, s.Median, s.Min, s.Max)
}
