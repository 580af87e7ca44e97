package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/printworks/relay/internal/allocate"
	"github.com/printworks/relay/internal/cluster"
	"github.com/printworks/relay/internal/config"
	"github.com/printworks/relay/internal/db"
	"github.com/printworks/relay/internal/dispatch"
	"github.com/printworks/relay/internal/feed"
	"github.com/printworks/relay/internal/ledger"
	"github.com/printworks/relay/internal/monitor"
	"github.com/printworks/relay/internal/printer"
	"github.com/printworks/relay/internal/supplier"
)

func initTestDB(t *testing.T) {
	t.Helper()
	if err := db.Init(db.Config{Path: ":memory:"}); err != nil {
		t.Fatalf("init database: %v", err)
	}
}

type recordingBackend struct {
	mu      sync.Mutex
	submits int
}

func (b *recordingBackend) Capabilities(_ context.Context, name string) (*db.Printer, error) {
	return &db.Printer{Name: name, Media: string(supplier.MediaA4)}, nil
}

func (b *recordingBackend) Submit(_ context.Context, _, _ string, _ []byte, _ printer.SubmitOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits++
	return nil
}

func (b *recordingBackend) submissions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submits
}

// TestPollCycleCompletesDirectJob drives one document through a full cycle
// with quota integration off: it must be printed once, charged, settled and
// reported completed, and a re-offer of the same document must not print or
// charge again.
func TestPollCycleCompletesDirectJob(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()

	ledgerSvc := ledger.NewService(db.GetDB(), nil)
	backend := &recordingBackend{}

	cfg := config.PollerConfig{
		HeartbeatInterval: time.Millisecond,
		HeartbeatsPerPoll: 1,
		PageCost:          0.1,
		TicketExpiry:      time.Hour,
	}

	sim := supplier.NewSimulator("poll-a")
	conn := supplier.NewConnection(config.ConnectionConfig{
		Account:  "poll-a",
		Printers: config.PrinterMapConfig{Plain: "lobby"},
	}, sim)

	liveness := cluster.NewLivenessTable(time.Second, 1)
	o := NewOrchestrator(Deps{
		Config:      cfg,
		Connections: []*supplier.Connection{conn},
		Router:      cluster.NewRouter(liveness),
		Liveness:    liveness,
		Cache:       cluster.NewProxyCache(),
		Dispatcher:  dispatch.NewDispatcher(ledgerSvc, backend, cfg),
		Monitor:     monitor.New(ledgerSvc, nil, backend),
		Ledger:      ledgerSvc,
		Feed:        feed.NewHub(),
	})

	// No directory configured, so the charged user must pre-exist.
	if err := db.Accounts.CreateAccount(ctx, &db.Account{Name: "teacher-1", Kind: db.AccountUser}); err != nil {
		t.Fatalf("create account: %v", err)
	}

	doc := supplier.Document{
		ID:        "poll-doc-1",
		Name:      "essay.pdf",
		Requester: "teacher-1",
		Media:     supplier.MediaA4,
		Pages:     2,
		Billing: []supplier.BillingEntry{
			{Username: "teacher-1", Role: allocate.RoleTeacher, Copies: 1},
		},
		Content: []byte("pdf bytes"),
	}
	sim.Queue(doc)

	if err := o.pollCycle(ctx); err != nil {
		t.Fatalf("pollCycle failed: %v", err)
	}

	if got := backend.submissions(); got != 1 {
		t.Fatalf("expected 1 backend submission, got %d", got)
	}
	if st, ok := sim.ReportedStatus("poll-doc-1"); !ok || st != supplier.StatusCompleted {
		t.Errorf("supplier status = %s/%t, want COMPLETED", st, ok)
	}

	account, err := db.Accounts.GetAccountByName(ctx, "teacher-1")
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	wantBalance := -cfg.PageCost * 2
	if account.Balance != wantBalance {
		t.Errorf("balance = %f, want %f", account.Balance, wantBalance)
	}

	// The supplier re-offers a document until the report lands; a raced
	// re-offer of an already dispatched one must be a no-op.
	sim.Queue(doc)
	if err := o.pollCycle(ctx); err != nil {
		t.Fatalf("second pollCycle failed: %v", err)
	}
	if got := backend.submissions(); got != 1 {
		t.Errorf("re-offered document printed again: %d submissions", got)
	}
	account, err = db.Accounts.GetAccountByName(ctx, "teacher-1")
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if account.Balance != wantBalance {
		t.Errorf("re-offered document charged again: balance %f", account.Balance)
	}
}

// TestPollCyclePullsParkedDocuments verifies the pulling half of the proxy
// transport: a clustered node drains the documents a sibling parked for it
// and runs them through its own dispatch pipeline.
func TestPollCyclePullsParkedDocuments(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()

	peerCache := cluster.NewProxyCache()
	peerCache.Put("poll-b", "north", &supplier.Document{
		ID:        "parked-doc-1",
		Name:      "handout.pdf",
		Requester: "teacher-2",
		Media:     supplier.MediaA4,
		Pages:     1,
		Billing: []supplier.BillingEntry{
			{Username: "teacher-2", Role: allocate.RoleTeacher, Copies: 1},
		},
	}, []byte("parked payload"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := peerCache.Take(r.URL.Query().Get("account"), r.URL.Query().Get("node"))
		if doc == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(cluster.ParkedDocument{Document: doc.Document, Payload: doc.Payload})
	}))
	defer srv.Close()

	ledgerSvc := ledger.NewService(db.GetDB(), nil)
	backend := &recordingBackend{}
	cfg := config.PollerConfig{
		HeartbeatInterval: time.Millisecond,
		HeartbeatsPerPoll: 1,
		PageCost:          0.1,
		TicketExpiry:      time.Hour,
	}

	sim := supplier.NewSimulator("poll-b")
	conn := supplier.NewConnection(config.ConnectionConfig{
		Account:       "poll-b",
		ClusterNode:   "north",
		ProxyEndpoint: srv.URL,
		Printers:      config.PrinterMapConfig{Plain: "lobby"},
	}, sim)

	liveness := cluster.NewLivenessTable(time.Second, 1)
	o := NewOrchestrator(Deps{
		Config:      cfg,
		Connections: []*supplier.Connection{conn},
		Router:      cluster.NewRouter(liveness),
		Liveness:    liveness,
		Cache:       cluster.NewProxyCache(),
		Proxy:       cluster.NewProxyClient(0),
		Dispatcher:  dispatch.NewDispatcher(ledgerSvc, backend, cfg),
		Monitor:     monitor.New(ledgerSvc, nil, backend),
		Ledger:      ledgerSvc,
		Feed:        feed.NewHub(),
	})

	if err := db.Accounts.CreateAccount(ctx, &db.Account{Name: "teacher-2", Kind: db.AccountUser}); err != nil {
		t.Fatalf("create account: %v", err)
	}

	if err := o.pollCycle(ctx); err != nil {
		t.Fatalf("pollCycle failed: %v", err)
	}

	if peerCache.Len() != 0 {
		t.Errorf("parked document left behind on the peer")
	}
	if got := backend.submissions(); got != 1 {
		t.Fatalf("expected 1 backend submission, got %d", got)
	}
	if st, ok := sim.ReportedStatus("parked-doc-1"); !ok || st != supplier.StatusCompleted {
		t.Errorf("supplier status = %s/%t, want COMPLETED", st, ok)
	}
}
