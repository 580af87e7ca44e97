package ledger

import "sync"

// Gate is the administrative read/write gate over the ledger. Normal work
// enters and leaves around each writing section; maintenance suspends the
// gate, which blocks new entries and waits for active sections to drain.
// In-flight network I/O is never interrupted because callers only hold the
// gate around local commits.
type Gate struct {
	mu        sync.Mutex
	cond      *sync.Cond
	suspended bool
	active    int
}

func NewGate() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Enter blocks while the gate is suspended, then registers an active section.
func (g *Gate) Enter() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for g.suspended {
		g.cond.Wait()
	}
	g.active++
}

func (g *Gate) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.active--
	if g.active == 0 {
		g.cond.Broadcast()
	}
}

// Suspend closes the gate for new sections and waits for active ones to
// finish. Used for maintenance windows.
func (g *Gate) Suspend() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.suspended = true
	for g.active > 0 {
		g.cond.Wait()
	}
}

func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.suspended = false
	g.cond.Broadcast()
}

func (g *Gate) Suspended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suspended
}
