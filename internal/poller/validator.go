package poller

import (
	"context"
	"fmt"

	"github.com/printworks/relay/internal/allocate"
	"github.com/printworks/relay/internal/chunk"
	"github.com/printworks/relay/internal/ledger"
	"github.com/printworks/relay/internal/printer"
	"github.com/printworks/relay/internal/supplier"
)

// userValidator answers whether a charged user can be billed: present in the
// local ledger (lazily provisioned from the directory) and, when quota
// integration is active, known to the quota backend too.
type userValidator struct {
	ledger      *ledger.Service
	quota       printer.QuotaService
	quotaActive bool
}

func (v *userValidator) ValidateUser(ctx context.Context, username string) error {
	if _, err := v.ledger.EnsureUserAccount(ctx, username); err != nil {
		return err
	}

	if v.quotaActive && v.quota != nil {
		known, err := v.quota.UserExists(ctx, username)
		if err != nil {
			return fmt.Errorf("quota user lookup: %w", err)
		}
		if !known {
			return fmt.Errorf("user %s unknown to quota backend", username)
		}
	}
	return nil
}

func allocateDocument(ctx context.Context, doc *supplier.Document, conn *supplier.Connection, validator allocate.UserValidator) *allocate.Result {
	return allocate.Allocate(ctx, doc.Billing, conn.ChargeToStudents, validator)
}

func documentChunks(doc *supplier.Document) ([]chunk.Chunk, error) {
	docs := []chunk.DocumentInfo{{
		Index: 0,
		Pages: doc.Pages,
		Media: doc.Media,
	}}
	return chunk.Partition(docs, doc.Selection)
}
