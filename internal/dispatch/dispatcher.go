// Package dispatch submits chunked, allocated documents to the print
// backend and commits the matching ledger effects.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/printworks/relay/internal/allocate"
	"github.com/printworks/relay/internal/chunk"
	"github.com/printworks/relay/internal/config"
	"github.com/printworks/relay/internal/db"
	"github.com/printworks/relay/internal/ledger"
	"github.com/printworks/relay/internal/printer"
	"github.com/printworks/relay/internal/supplier"
)

const (
	ModeAuto = "auto"
	ModeHold = "hold"
)

const (
	// StatusSubmitted: AUTO job handed to the backend, outcome pending in
	// the quota usage log.
	StatusSubmitted = "submitted"
	// StatusHeld: HOLD job parked until release or expiry.
	StatusHeld = "held"
	// StatusPendingCancel / StatusPendingComplete: set by release and
	// expiry logic, picked up by the completion monitor.
	StatusPendingCancel   = "pending_cancel"
	StatusPendingComplete = "pending_complete"
	StatusCompleted       = "completed"
	StatusCancelled       = "cancelled"
	StatusError           = "error"
)

// IsTerminal reports whether a dispatch status is final.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled || status == StatusError
}

type Dispatcher struct {
	ledger          *ledger.Service
	backend         printer.Backend
	quotaActive     bool
	grayscaleFilter bool
	pageCost        float64
	ticketExpiry    time.Duration
}

func NewDispatcher(ledgerSvc *ledger.Service, backend printer.Backend, cfg config.PollerConfig) *Dispatcher {
	return &Dispatcher{
		ledger:          ledgerSvc,
		backend:         backend,
		quotaActive:     cfg.QuotaIntegration,
		grayscaleFilter: cfg.GrayscaleFiltering,
		pageCost:        cfg.PageCost,
		ticketExpiry:    cfg.TicketExpiry,
	}
}

// JobPrefix is the encoded job-name prefix for one connection; the
// completion monitor matches quota usage-log entries against it.
func JobPrefix(account string) string {
	return "relay-" + account + "-"
}

// SelectPrinter picks the target printer name from the per-mode mapping
// using (color, duplex) with graceful fallback: a missing duplex variant
// falls back to the simplex printer and drops the duplex hint.
func SelectPrinter(m config.PrinterMapConfig, color, duplex bool) (string, bool, error) {
	if color {
		if duplex && m.Duplex != "" {
			return m.Duplex, true, nil
		}
		if m.Plain != "" {
			return m.Plain, false, nil
		}
		return "", false, fmt.Errorf("no color printer configured")
	}

	if duplex && m.GrayscaleDuplex != "" {
		return m.GrayscaleDuplex, true, nil
	}
	if m.Grayscale != "" {
		return m.Grayscale, false, nil
	}
	if m.Plain != "" {
		return m.Plain, false, nil
	}
	return "", false, fmt.Errorf("no grayscale printer configured")
}

// Dispatch submits one document. Network calls (capability probe and
// submission) happen before the ledger commit; the commit itself runs under
// the responsible user's row lock and leaves no partial effect on failure.
func (d *Dispatcher) Dispatch(ctx context.Context, conn *supplier.Connection, doc *supplier.Document, content []byte, alloc *allocate.Result, chunks []chunk.Chunk) (*db.DispatchRecord, error) {
	printerName, duplex, err := SelectPrinter(conn.Printers, !doc.Grayscale, doc.Duplex)
	if err != nil {
		return nil, supplier.WrapFault(supplier.KindDispatch, "select printer", err)
	}

	caps, err := d.backend.Capabilities(ctx, printerName)
	if err != nil {
		return nil, supplier.WrapFault(supplier.KindDispatch, "probe printer", err)
	}
	for _, c := range chunks {
		if caps.Media != string(c.Media) {
			return nil, supplier.Faultf(supplier.KindDispatch,
				"printer %s loads %s but the job needs %s", printerName, caps.Media, c.Media)
		}
	}

	mode := ModeAuto
	if !d.quotaActive && conn.RequiresRelease(printerName) {
		mode = ModeHold
	}

	payload := content
	if caps.ColorCapable && doc.Grayscale && d.grayscaleFilter {
		tmpPath, converted, err := monochromeCopy(content)
		if err != nil {
			return nil, supplier.WrapFault(supplier.KindContent, "grayscale conversion", err)
		}
		// The converted copy is temporary regardless of outcome.
		defer os.Remove(tmpPath)
		payload = converted
	}

	jobName := JobPrefix(conn.Account) + uuid.NewString()

	pages := 0
	for _, c := range chunks {
		pages += c.Pages()
	}

	optsList := make([]printer.SubmitOptions, 0, len(chunks))
	for _, c := range chunks {
		optsList = append(optsList, printer.SubmitOptions{
			Media:   c.Media,
			Duplex:  duplex,
			Color:   !doc.Grayscale,
			Copies:  alloc.Total,
			Collate: true,
		})
	}

	if mode == ModeAuto {
		for _, opts := range optsList {
			if err := d.backend.Submit(ctx, printerName, jobName, payload, opts); err != nil {
				return nil, supplier.WrapFault(supplier.KindDispatch, "backend submission", err)
			}
		}
	}

	record, err := d.persist(ctx, conn, doc, alloc, mode, printerName, jobName, pages, payload, optsList)
	if err != nil {
		return nil, err
	}

	log.Printf("[dispatch] document %s -> %s on %s as %s (mode %s, %d pages x %d copies)",
		doc.ID, record.Status, printerName, jobName, mode, pages, alloc.Total)
	return record, nil
}

func (d *Dispatcher) persist(ctx context.Context, conn *supplier.Connection, doc *supplier.Document, alloc *allocate.Result, mode, printerName, jobName string, pages int, payload []byte, optsList []printer.SubmitOptions) (*db.DispatchRecord, error) {
	docLog := &db.DocumentLog{
		SupplierDocID: doc.ID,
		Account:       conn.Account,
		Name:          doc.Name,
		Requester:     doc.Requester,
		Status:        "processing",
	}
	if err := db.DocumentLogs.CreateDocumentLog(ctx, docLog); err != nil {
		return nil, err
	}

	allocJSON, err := json.Marshal(alloc)
	if err != nil {
		return nil, fmt.Errorf("marshal allocation: %w", err)
	}

	cost := d.pageCost * float64(pages) * float64(alloc.Total)

	record := &db.DispatchRecord{
		Correlation:    uuid.NewString(),
		DocumentLogID:  docLog.ID,
		Account:        conn.Account,
		Mode:           mode,
		Printer:        printerName,
		JobName:        jobName,
		AllocationJSON: string(allocJSON),
		Cost:           cost,
	}

	var specs []ledger.TxSpec
	switch mode {
	case ModeHold:
		// Projected cost is charged up front; expiry abandons the ticket.
		// Nothing reaches the backend until release, so the payload and
		// submit options ride on the record for the completion monitor.
		record.Status = StatusHeld
		expiry := time.Now().Add(d.ticketExpiry)
		record.ExpiresAt = &expiry
		record.Payload = payload
		submitJSON, err := json.Marshal(optsList)
		if err != nil {
			return nil, fmt.Errorf("marshal submit options: %w", err)
		}
		record.SubmitJSON = string(submitJSON)
		specs = alloc.Transactions(cost, "print: "+doc.Name)
	default:
		record.Status = StatusSubmitted
		if !d.quotaActive {
			specs = alloc.Transactions(cost, "print: "+doc.Name)
		}
		// Quota-integrated AUTO jobs charge nothing now; the completion
		// monitor settles them once the backend confirms success.
	}

	if err := d.ledger.CommitDispatch(ctx, LockUser(doc, conn), record, specs); err != nil {
		return nil, err
	}
	return record, nil
}

// LockUser picks the ledger row lock key for a document: the requester when
// known, otherwise the connection account.
func LockUser(doc *supplier.Document, conn *supplier.Connection) string {
	if doc.Requester != "" {
		return doc.Requester
	}
	return conn.Account
}
