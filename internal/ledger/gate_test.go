package ledger

import (
	"testing"
	"time"
)

func TestGateBlocksEntryWhileSuspended(t *testing.T) {
	g := NewGate()
	g.Suspend()

	entered := make(chan struct{})
	go func() {
		g.Enter()
		defer g.Leave()
		close(entered)
	}()

	select {
	case <-entered:
		t.Fatal("entered a suspended gate")
	case <-time.After(200 * time.Millisecond):
	}

	g.Resume()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("resume did not release waiting writer")
	}
}

func TestSuspendWaitsForActiveSections(t *testing.T) {
	g := NewGate()
	g.Enter()

	suspended := make(chan struct{})
	go func() {
		g.Suspend()
		close(suspended)
	}()

	select {
	case <-suspended:
		t.Fatal("suspend returned while a section was active")
	case <-time.After(200 * time.Millisecond):
	}

	g.Leave()

	select {
	case <-suspended:
	case <-time.After(2 * time.Second):
		t.Fatal("suspend never finished after the section drained")
	}

	if !g.Suspended() {
		t.Errorf("gate must report suspended")
	}
	g.Resume()
	if g.Suspended() {
		t.Errorf("gate must report resumed")
	}
}

func TestGateAllowsConcurrentSections(t *testing.T) {
	g := NewGate()
	g.Enter()
	g.Enter()
	g.Leave()
	g.Leave()
}
