package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/printworks/relay/internal/config"
	"github.com/printworks/relay/internal/db"
	"github.com/printworks/relay/internal/dispatch"
	"github.com/printworks/relay/internal/ledger"
	"github.com/printworks/relay/internal/printer"
	"github.com/printworks/relay/internal/supplier"
)

func initTestDB(t *testing.T) {
	t.Helper()
	if err := db.Init(db.Config{Path: ":memory:"}); err != nil {
		t.Fatalf("init database: %v", err)
	}
}

type submission struct {
	printer string
	jobName string
	payload []byte
	opts    printer.SubmitOptions
}

type fakeBackend struct {
	mu      sync.Mutex
	submits []submission
	fail    bool
}

func (b *fakeBackend) Capabilities(_ context.Context, name string) (*db.Printer, error) {
	return &db.Printer{Name: name, Media: string(supplier.MediaA4), ColorCapable: true}, nil
}

func (b *fakeBackend) Submit(_ context.Context, printerName, jobName string, payload []byte, opts printer.SubmitOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("printer unreachable")
	}
	b.submits = append(b.submits, submission{printer: printerName, jobName: jobName, payload: payload, opts: opts})
	return nil
}

func (b *fakeBackend) submissions() []submission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]submission(nil), b.submits...)
}

// countingService records every status report so tests can assert how often
// the supplier was actually called.
type countingService struct {
	mu      sync.Mutex
	reports map[string][]supplier.DocumentStatus
	fail    bool
}

func newCountingService() *countingService {
	return &countingService{reports: make(map[string][]supplier.DocumentStatus)}
}

func (s *countingService) GetJobTicket() (*supplier.JobTicket, error) {
	return &supplier.JobTicket{}, nil
}

func (s *countingService) ReportDocumentStatus(documentID string, status supplier.DocumentStatus, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("supplier unreachable")
	}
	s.reports[documentID] = append(s.reports[documentID], status)
	return nil
}

func (s *countingService) DownloadDocument(doc *supplier.Document) ([]byte, error) {
	return doc.Content, nil
}

func (s *countingService) reported(documentID string) []supplier.DocumentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]supplier.DocumentStatus(nil), s.reports[documentID]...)
}

func testConnection(account string, svc supplier.Service) *supplier.Connection {
	return supplier.NewConnection(config.ConnectionConfig{
		Account:  account,
		Printers: config.PrinterMapConfig{Plain: "lobby"},
	}, svc)
}

func seedDispatch(t *testing.T, ledgerSvc *ledger.Service, record *db.DispatchRecord, supplierDocID string) *db.DocumentLog {
	t.Helper()
	ctx := context.Background()

	docLog := &db.DocumentLog{
		SupplierDocID: supplierDocID,
		Account:       record.Account,
		Status:        "processing",
	}
	if err := db.DocumentLogs.CreateDocumentLog(ctx, docLog); err != nil {
		t.Fatalf("create document log: %v", err)
	}
	record.DocumentLogID = docLog.ID

	if err := ledgerSvc.CommitDispatch(ctx, record.Account, record, nil); err != nil {
		t.Fatalf("commit dispatch: %v", err)
	}
	return docLog
}

func TestDirectSweepCompletesUnconfirmedAutoJobs(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()

	ledgerSvc := ledger.NewService(db.GetDB(), nil)
	m := New(ledgerSvc, nil, &fakeBackend{})

	svc := newCountingService()
	conn := testConnection("direct-a", svc)

	record := &db.DispatchRecord{
		Correlation:    "corr-direct-1",
		Account:        "direct-a",
		Mode:           dispatch.ModeAuto,
		Printer:        "lobby",
		JobName:        "relay-direct-a-1",
		Status:         dispatch.StatusSubmitted,
		AllocationJSON: "{}",
		Cost:           0.2,
	}
	seedDispatch(t, ledgerSvc, record, "doc-direct-1")

	if err := m.DirectSweep(ctx, conn); err != nil {
		t.Fatalf("DirectSweep failed: %v", err)
	}

	got, err := db.Dispatches.GetByCorrelation(ctx, "corr-direct-1")
	if err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if got.Status != dispatch.StatusCompleted {
		t.Errorf("record status = %s, want %s", got.Status, dispatch.StatusCompleted)
	}
	if got.CompletedAt == nil {
		t.Errorf("completed record must carry a completion time")
	}
	if reports := svc.reported("doc-direct-1"); len(reports) != 1 || reports[0] != supplier.StatusCompleted {
		t.Errorf("supplier reports = %v, want one COMPLETED", reports)
	}

	// A second sweep finds no submitted record and stays quiet.
	if err := m.DirectSweep(ctx, conn); err != nil {
		t.Fatalf("second DirectSweep failed: %v", err)
	}
	if reports := svc.reported("doc-direct-1"); len(reports) != 1 {
		t.Errorf("settled job reported again: %v", reports)
	}
}

func TestDirectSweepSkipsOtherAccounts(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()

	ledgerSvc := ledger.NewService(db.GetDB(), nil)
	m := New(ledgerSvc, nil, &fakeBackend{})

	record := &db.DispatchRecord{
		Correlation:    "corr-direct-2",
		Account:        "direct-b",
		Mode:           dispatch.ModeAuto,
		Printer:        "lobby",
		JobName:        "relay-direct-b-1",
		Status:         dispatch.StatusSubmitted,
		AllocationJSON: "{}",
	}
	seedDispatch(t, ledgerSvc, record, "doc-direct-2")

	svc := newCountingService()
	if err := m.DirectSweep(ctx, testConnection("direct-other", svc)); err != nil {
		t.Fatalf("DirectSweep failed: %v", err)
	}

	got, err := db.Dispatches.GetByCorrelation(ctx, "corr-direct-2")
	if err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if got.Status != dispatch.StatusSubmitted {
		t.Errorf("foreign connection settled the record: %s", got.Status)
	}
}

func TestHoldSweepPrintsReleasedTicket(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()

	ledgerSvc := ledger.NewService(db.GetDB(), nil)
	backend := &fakeBackend{}
	m := New(ledgerSvc, nil, backend)

	svc := newCountingService()
	conn := testConnection("hold-a", svc)

	optsJSON, err := json.Marshal([]printer.SubmitOptions{
		{Media: supplier.MediaA4, Copies: 2, Collate: true},
	})
	if err != nil {
		t.Fatalf("marshal submit options: %v", err)
	}

	record := &db.DispatchRecord{
		Correlation:    "corr-hold-1",
		Account:        "hold-a",
		Mode:           dispatch.ModeHold,
		Printer:        "lobby",
		JobName:        "relay-hold-a-1",
		Status:         dispatch.StatusHeld,
		AllocationJSON: "{}",
		Cost:           0.4,
		Payload:        []byte("held payload"),
		SubmitJSON:     string(optsJSON),
	}
	seedDispatch(t, ledgerSvc, record, "doc-hold-1")

	// The same transition an operator release makes.
	if err := db.Dispatches.UpdateStatus(ctx, "corr-hold-1", dispatch.StatusPendingComplete); err != nil {
		t.Fatalf("release ticket: %v", err)
	}

	if err := m.HoldSweep(ctx, conn); err != nil {
		t.Fatalf("HoldSweep failed: %v", err)
	}

	subs := backend.submissions()
	if len(subs) != 1 {
		t.Fatalf("expected 1 backend submission, got %d", len(subs))
	}
	if string(subs[0].payload) != "held payload" {
		t.Errorf("submitted payload = %q, want the stored one", subs[0].payload)
	}
	if subs[0].printer != "lobby" || subs[0].jobName != "relay-hold-a-1" {
		t.Errorf("submission routed wrong: %s/%s", subs[0].printer, subs[0].jobName)
	}
	if subs[0].opts.Copies != 2 || !subs[0].opts.Collate {
		t.Errorf("submit options not restored: %+v", subs[0].opts)
	}

	got, err := db.Dispatches.GetByCorrelation(ctx, "corr-hold-1")
	if err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if got.Status != dispatch.StatusCompleted {
		t.Errorf("record status = %s, want %s", got.Status, dispatch.StatusCompleted)
	}
	if reports := svc.reported("doc-hold-1"); len(reports) != 1 || reports[0] != supplier.StatusCompleted {
		t.Errorf("supplier reports = %v, want one COMPLETED", reports)
	}

	// Terminal settlement clears the stored payload.
	payload, _, err := db.Dispatches.GetPayload(ctx, "corr-hold-1")
	if err != nil {
		t.Fatalf("reload payload: %v", err)
	}
	if len(payload) != 0 {
		t.Errorf("payload must be cleared after completion")
	}
}

func TestHoldSweepKeepsTicketWhenBackendFails(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()

	ledgerSvc := ledger.NewService(db.GetDB(), nil)
	backend := &fakeBackend{fail: true}
	m := New(ledgerSvc, nil, backend)

	svc := newCountingService()
	conn := testConnection("hold-b", svc)

	optsJSON, err := json.Marshal([]printer.SubmitOptions{{Media: supplier.MediaA4, Copies: 1}})
	if err != nil {
		t.Fatalf("marshal submit options: %v", err)
	}

	record := &db.DispatchRecord{
		Correlation:    "corr-hold-2",
		Account:        "hold-b",
		Mode:           dispatch.ModeHold,
		Printer:        "lobby",
		JobName:        "relay-hold-b-1",
		Status:         dispatch.StatusHeld,
		AllocationJSON: "{}",
		Payload:        []byte("held payload"),
		SubmitJSON:     string(optsJSON),
	}
	seedDispatch(t, ledgerSvc, record, "doc-hold-2")

	if err := db.Dispatches.UpdateStatus(ctx, "corr-hold-2", dispatch.StatusPendingComplete); err != nil {
		t.Fatalf("release ticket: %v", err)
	}

	if err := m.HoldSweep(ctx, conn); err != nil {
		t.Fatalf("HoldSweep failed: %v", err)
	}

	got, err := db.Dispatches.GetByCorrelation(ctx, "corr-hold-2")
	if err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if got.Status != dispatch.StatusPendingComplete {
		t.Errorf("record status = %s, must stay pending while the printer is down", got.Status)
	}
	if reports := svc.reported("doc-hold-2"); len(reports) != 0 {
		t.Errorf("nothing printed, nothing to report, got %v", reports)
	}

	// Printer back: the retry completes the ticket.
	backend.mu.Lock()
	backend.fail = false
	backend.mu.Unlock()

	if err := m.HoldSweep(ctx, conn); err != nil {
		t.Fatalf("retry HoldSweep failed: %v", err)
	}
	if len(backend.submissions()) != 1 {
		t.Fatalf("expected the retried submission")
	}
	got, err = db.Dispatches.GetByCorrelation(ctx, "corr-hold-2")
	if err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if got.Status != dispatch.StatusCompleted {
		t.Errorf("record status = %s, want %s after retry", got.Status, dispatch.StatusCompleted)
	}
}

func TestReportOutcomeIsIdempotent(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()

	svc := newCountingService()
	conn := testConnection("report-a", svc)

	docLog := &db.DocumentLog{
		SupplierDocID: "doc-report-1",
		Account:       "report-a",
		Status:        "processing",
	}
	if err := db.DocumentLogs.CreateDocumentLog(ctx, docLog); err != nil {
		t.Fatalf("create document log: %v", err)
	}

	if err := reportOutcome(ctx, conn, docLog, dispatch.StatusCompleted, ""); err != nil {
		t.Fatalf("first report failed: %v", err)
	}
	if reports := svc.reported("doc-report-1"); len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}

	reloaded, err := db.DocumentLogs.GetByID(ctx, docLog.ID)
	if err != nil {
		t.Fatalf("reload document log: %v", err)
	}
	if reloaded.Status != dispatch.StatusCompleted {
		t.Fatalf("log status = %s, want %s", reloaded.Status, dispatch.StatusCompleted)
	}

	if err := reportOutcome(ctx, conn, reloaded, dispatch.StatusCompleted, ""); err != nil {
		t.Fatalf("repeat report failed: %v", err)
	}
	if reports := svc.reported("doc-report-1"); len(reports) != 1 {
		t.Errorf("repeat call must issue no RPC, got %d reports", len(reports))
	}
	again, err := db.DocumentLogs.GetByID(ctx, docLog.ID)
	if err != nil {
		t.Fatalf("reload document log: %v", err)
	}
	if again.Status != reloaded.Status || again.Comment != reloaded.Comment {
		t.Errorf("repeat call changed the log: %+v", again)
	}
}

func TestReportOutcomeFailureLeavesLogUntouched(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()

	svc := newCountingService()
	svc.fail = true
	conn := testConnection("report-b", svc)

	docLog := &db.DocumentLog{
		SupplierDocID: "doc-report-2",
		Account:       "report-b",
		Status:        "processing",
	}
	if err := db.DocumentLogs.CreateDocumentLog(ctx, docLog); err != nil {
		t.Fatalf("create document log: %v", err)
	}

	if err := reportOutcome(ctx, conn, docLog, dispatch.StatusCompleted, ""); err == nil {
		t.Fatal("expected report failure to surface")
	}

	reloaded, err := db.DocumentLogs.GetByID(ctx, docLog.ID)
	if err != nil {
		t.Fatalf("reload document log: %v", err)
	}
	if reloaded.Status != "processing" {
		t.Errorf("failed report advanced the log to %s", reloaded.Status)
	}
}
