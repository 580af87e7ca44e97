// Package monitor drives dispatched jobs to their terminal state: AUTO jobs
// are settled from the quota usage log, held tickets are expired, cancelled
// and completed, and every outcome is reported back to the supplier.
package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/printworks/relay/internal/allocate"
	"github.com/printworks/relay/internal/db"
	"github.com/printworks/relay/internal/dispatch"
	"github.com/printworks/relay/internal/ledger"
	"github.com/printworks/relay/internal/printer"
	"github.com/printworks/relay/internal/supplier"
)

// directSweepBatch bounds one direct sweep pass; leftovers wait for the
// next cycle.
const directSweepBatch = 100

type Monitor struct {
	ledger  *ledger.Service
	quota   printer.QuotaService
	backend printer.Backend
}

func New(ledgerSvc *ledger.Service, quota printer.QuotaService, backend printer.Backend) *Monitor {
	return &Monitor{
		ledger:  ledgerSvc,
		quota:   quota,
		backend: backend,
	}
}

// AutoSweep matches the quota backend's finished-job log against submitted
// dispatch records and settles each match: the deferred charge lands on
// completion, nothing is charged on cancellation, and the outcome goes back
// to the supplier. A quota backend failure aborts the whole sweep; a single
// unmatchable entry is logged and skipped.
func (m *Monitor) AutoSweep(ctx context.Context, conn *supplier.Connection) error {
	if m.quota == nil {
		return nil
	}

	usage, err := m.quota.UsageLog(ctx, dispatch.JobPrefix(conn.Account))
	if err != nil {
		return supplier.WrapFault(supplier.KindConnectivity, "quota usage log", err)
	}

	for _, entry := range usage {
		if err := m.settleUsage(ctx, conn, entry); err != nil {
			log.Printf("[monitor] usage entry %s: %v", entry.JobName, err)
		}
	}
	return nil
}

func (m *Monitor) settleUsage(ctx context.Context, conn *supplier.Connection, entry printer.UsageRecord) error {
	record, err := db.Dispatches.GetByJobName(ctx, entry.JobName)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no dispatch record for job %s", entry.JobName)
	}
	if err != nil {
		return err
	}
	if record.Mode != dispatch.ModeAuto || dispatch.IsTerminal(record.Status) {
		return nil
	}

	status, specs, err := settlement(record, entry.Status)
	if err != nil {
		return err
	}

	docLog, err := db.DocumentLogs.GetByID(ctx, record.DocumentLogID)
	if err != nil {
		return err
	}

	if err := m.ledger.SettleDispatch(ctx, lockUser(docLog, record), record.Correlation, status, specs); err != nil {
		return err
	}
	return reportOutcome(ctx, conn, docLog, status, "")
}

// settlement maps one usage-log outcome to the terminal dispatch status and
// the deferred ledger transactions that go with it.
func settlement(record *db.DispatchRecord, usageStatus string) (string, []ledger.TxSpec, error) {
	switch usageStatus {
	case printer.UsageCompleted:
		alloc, err := storedAllocation(record)
		if err != nil {
			return "", nil, err
		}
		return dispatch.StatusCompleted, alloc.Transactions(record.Cost, "print: "+record.JobName), nil
	case printer.UsageCancelled:
		return dispatch.StatusCancelled, nil, nil
	default:
		return "", nil, fmt.Errorf("unknown usage status %q", usageStatus)
	}
}

// DirectSweep finalizes AUTO submissions when no quota backend will confirm
// them. The print backend accepted the payload at dispatch, which is as
// final as the outcome gets without a usage log, so each submitted record is
// reported completed and closed out. The charge already landed at dispatch;
// settling adds no further ledger effect.
func (m *Monitor) DirectSweep(ctx context.Context, conn *supplier.Connection) error {
	records, err := db.Dispatches.ListByStatus(ctx, dispatch.StatusSubmitted, directSweepBatch)
	if err != nil {
		return err
	}

	for _, record := range records {
		if record.Account != conn.Account || record.Mode != dispatch.ModeAuto {
			continue
		}

		docLog, err := db.DocumentLogs.GetByID(ctx, record.DocumentLogID)
		if err != nil {
			log.Printf("[monitor] job %s: %v", record.JobName, err)
			continue
		}

		// Report first: a failed report keeps the record submitted and the
		// whole step is retried next sweep, while a failed settle after a
		// successful report skips the duplicate RPC on that retry.
		if err := reportOutcome(ctx, conn, docLog, dispatch.StatusCompleted, ""); err != nil {
			log.Printf("[monitor] report job %s: %v", record.JobName, err)
			continue
		}
		if err := m.ledger.SettleDispatch(ctx, lockUser(docLog, record), record.Correlation, dispatch.StatusCompleted, nil); err != nil {
			log.Printf("[monitor] settle job %s: %v", record.JobName, err)
		}
	}
	return nil
}

// HoldSweep expires stale held tickets, then drives pending tickets to their
// terminal state. Pending cancels refund the upfront charge; pending
// completions close out with no further ledger effect.
func (m *Monitor) HoldSweep(ctx context.Context, conn *supplier.Connection) error {
	expired, err := db.Dispatches.ListExpired(ctx, dispatch.StatusHeld, time.Now())
	if err != nil {
		return err
	}
	for _, record := range expired {
		if record.Account != conn.Account {
			continue
		}
		if err := db.Dispatches.UpdateStatus(ctx, record.Correlation, dispatch.StatusPendingCancel); err != nil {
			log.Printf("[monitor] expire ticket %s: %v", record.JobName, err)
			continue
		}
		log.Printf("[monitor] held ticket %s expired", record.JobName)
	}

	if err := m.finishPending(ctx, conn, dispatch.StatusPendingCancel, dispatch.StatusCancelled); err != nil {
		return err
	}
	return m.finishPending(ctx, conn, dispatch.StatusPendingComplete, dispatch.StatusCompleted)
}

func (m *Monitor) finishPending(ctx context.Context, conn *supplier.Connection, from, to string) error {
	records, err := db.Dispatches.List(ctx, db.DispatchFilter{
		Account: conn.Account,
		Status:  from,
		Mode:    dispatch.ModeHold,
	})
	if err != nil {
		return err
	}

	for _, record := range records {
		var specs []ledger.TxSpec
		if to == dispatch.StatusCancelled {
			specs, err = refund(record)
			if err != nil {
				log.Printf("[monitor] ticket %s: %v", record.JobName, err)
				continue
			}
		}

		if to == dispatch.StatusCompleted {
			if err := m.releaseTicket(ctx, record); err != nil {
				log.Printf("[monitor] release ticket %s: %v", record.JobName, err)
				continue
			}
		}

		docLog, err := db.DocumentLogs.GetByID(ctx, record.DocumentLogID)
		if err != nil {
			log.Printf("[monitor] ticket %s: %v", record.JobName, err)
			continue
		}

		if err := m.ledger.SettleDispatch(ctx, lockUser(docLog, record), record.Correlation, to, specs); err != nil {
			log.Printf("[monitor] settle ticket %s: %v", record.JobName, err)
			continue
		}

		comment := ""
		if to == dispatch.StatusCancelled {
			comment = "hold ticket expired before release"
		}
		if err := reportOutcome(ctx, conn, docLog, to, comment); err != nil {
			log.Printf("[monitor] report ticket %s: %v", record.JobName, err)
		}
	}
	return nil
}

// releaseTicket pushes a released ticket's stored payload to the backend
// with the submit options captured at dispatch time. The physical print
// happens here, after release, never at hold time. A backend failure leaves
// the record pending so the next sweep retries.
func (m *Monitor) releaseTicket(ctx context.Context, record *db.DispatchRecord) error {
	payload, submitJSON, err := db.Dispatches.GetPayload(ctx, record.Correlation)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return fmt.Errorf("held ticket %s has no stored payload", record.JobName)
	}

	var optsList []printer.SubmitOptions
	if err := json.Unmarshal([]byte(submitJSON), &optsList); err != nil {
		return fmt.Errorf("decode stored submit options: %w", err)
	}

	for _, opts := range optsList {
		if err := m.backend.Submit(ctx, record.Printer, record.JobName, payload, opts); err != nil {
			return err
		}
	}
	return nil
}

// refund inverts the upfront charge of a held ticket using its stored
// allocation, so the credit splits across the same accounts and weights.
func refund(record *db.DispatchRecord) ([]ledger.TxSpec, error) {
	alloc, err := storedAllocation(record)
	if err != nil {
		return nil, err
	}
	return alloc.Transactions(-record.Cost, "refund: "+record.JobName), nil
}

func storedAllocation(record *db.DispatchRecord) (*allocate.Result, error) {
	alloc := &allocate.Result{}
	if err := json.Unmarshal([]byte(record.AllocationJSON), alloc); err != nil {
		return nil, fmt.Errorf("decode stored allocation: %w", err)
	}
	return alloc, nil
}

// lockUser picks the ledger row lock key for a settlement: the original
// requester when known, otherwise the connection account.
func lockUser(docLog *db.DocumentLog, record *db.DispatchRecord) string {
	if docLog.Requester != "" {
		return docLog.Requester
	}
	return record.Account
}
