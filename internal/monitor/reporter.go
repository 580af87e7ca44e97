package monitor

import (
	"context"
	"fmt"

	"github.com/printworks/relay/internal/db"
	"github.com/printworks/relay/internal/dispatch"
	"github.com/printworks/relay/internal/supplier"
)

// statusToDocumentStatus maps a terminal dispatch status to the supplier's
// status vocabulary.
func statusToDocumentStatus(status string) (supplier.DocumentStatus, bool) {
	switch status {
	case dispatch.StatusCompleted:
		return supplier.StatusCompleted, true
	case dispatch.StatusCancelled:
		return supplier.StatusCancelled, true
	case dispatch.StatusError:
		return supplier.StatusError, true
	}
	return "", false
}

// reportOutcome pushes a terminal outcome upstream at most once. The
// document log carries the last reported status, so a log already in the
// target state means an earlier sweep got through and the report is skipped.
// The log is only advanced after a successful report, which leaves a failed
// report to be retried on the next sweep.
func reportOutcome(ctx context.Context, conn *supplier.Connection, docLog *db.DocumentLog, status, comment string) error {
	if docLog.Status == status {
		return nil
	}

	ds, ok := statusToDocumentStatus(status)
	if !ok {
		return fmt.Errorf("no supplier mapping for status %q", status)
	}

	if err := conn.ReportDocumentStatus(docLog.SupplierDocID, ds, comment); err != nil {
		return supplier.WrapFault(supplier.KindConnectivity, "report document status", err)
	}
	return db.DocumentLogs.UpdateStatus(ctx, docLog.ID, status, comment)
}
