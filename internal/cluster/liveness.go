package cluster

import (
	"sync"
	"time"
)

// LivenessTable tracks the last observed heartbeat per cluster node. It is
// held in memory only; records vanish on restart and are rebuilt from the
// next heartbeats.
type LivenessTable struct {
	mu                 sync.RWMutex
	records            map[string]time.Time
	heartbeatInterval  time.Duration
	heartbeatsPerCycle int
	now                func() time.Time
}

func NewLivenessTable(heartbeatInterval time.Duration, heartbeatsPerCycle int) *LivenessTable {
	return &LivenessTable{
		records:            make(map[string]time.Time),
		heartbeatInterval:  heartbeatInterval,
		heartbeatsPerCycle: heartbeatsPerCycle,
		now:                time.Now,
	}
}

// Observe records a heartbeat for the node at the current time.
func (t *LivenessTable) Observe(node string) {
	t.ObserveAt(node, t.now())
}

func (t *LivenessTable) ObserveAt(node string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[node] = at
}

// Alive reports whether the node's last heartbeat is within twice the full
// poll cycle (heartbeat interval times heartbeats per cycle).
func (t *LivenessTable) Alive(node string) bool {
	t.mu.RLock()
	last, ok := t.records[node]
	t.mu.RUnlock()

	if !ok {
		return false
	}

	bound := 2 * t.heartbeatInterval * time.Duration(t.heartbeatsPerCycle)
	return t.now().Sub(last) < bound
}

// Snapshot returns a copy of the table for the admin API.
func (t *LivenessTable) Snapshot() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]time.Time, len(t.records))
	for node, ts := range t.records {
		out[node] = ts
	}
	return out
}
