package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type AccountOperations struct{}

func (o *AccountOperations) CreateAccount(ctx context.Context, a *Account) error {
	result, err := GetDB().ExecContext(ctx, InsertAccount, a.Name, a.Kind, a.ParentID, a.Balance)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get account id: %w", err)
	}
	a.ID = id
	return nil
}

func (o *AccountOperations) GetAccountByName(ctx context.Context, name string) (*Account, error) {
	a := &Account{}
	err := GetDB().QueryRowContext(ctx, GetAccountByName, name).Scan(
		&a.ID, &a.Name, &a.Kind, &a.ParentID, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get account by name: %w", err)
	}
	return a, nil
}

func (o *AccountOperations) GetAccountByID(ctx context.Context, id int64) (*Account, error) {
	a := &Account{}
	err := GetDB().QueryRowContext(ctx, GetAccountByID, id).Scan(
		&a.ID, &a.Name, &a.Kind, &a.ParentID, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (o *AccountOperations) ListAccounts(ctx context.Context, kind AccountKind, limit, offset int) ([]*Account, error) {
	rows, err := GetDB().QueryContext(ctx, ListAccountsByKind, kind, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a := &Account{}
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Kind, &a.ParentID, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (o *AccountOperations) AdjustBalanceTx(tx *sql.Tx, accountID int64, delta float64) error {
	_, err := tx.Exec(AdjustAccountBalance, delta, accountID)
	if err != nil {
		return fmt.Errorf("failed to adjust balance: %w", err)
	}
	return nil
}

type TransactionOperations struct{}

func (o *TransactionOperations) CreateTransactionTx(tx *sql.Tx, t *AccountTransaction) error {
	result, err := tx.Exec(InsertTransaction,
		t.AccountID, t.DispatchID, t.Amount, t.Weight, t.WeightUnit, t.Narrative)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transaction id: %w", err)
	}
	t.ID = id
	return nil
}

func (o *TransactionOperations) ListByAccount(ctx context.Context, accountID int64, limit, offset int) ([]*AccountTransaction, error) {
	rows, err := GetDB().QueryContext(ctx, ListTransactionsByAccount, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (o *TransactionOperations) ListByDispatch(ctx context.Context, dispatchID string) ([]*AccountTransaction, error) {
	rows, err := GetDB().QueryContext(ctx, ListTransactionsByDispatch, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions by dispatch: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (o *TransactionOperations) CountByDispatch(ctx context.Context, dispatchID string) (int, error) {
	var count int
	err := GetDB().QueryRowContext(ctx, CountTransactionsByDispatch, dispatchID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func scanTransactions(rows *sql.Rows) ([]*AccountTransaction, error) {
	var txns []*AccountTransaction
	for rows.Next() {
		t := &AccountTransaction{}
		if err := rows.Scan(
			&t.ID, &t.AccountID, &t.DispatchID, &t.Amount,
			&t.Weight, &t.WeightUnit, &t.Narrative, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

type DocumentLogOperations struct{}

func (o *DocumentLogOperations) CreateDocumentLog(ctx context.Context, d *DocumentLog) error {
	result, err := GetDB().ExecContext(ctx, InsertDocumentLog,
		d.SupplierDocID, d.Account, d.Name, d.Requester, d.Status, d.Comment)
	if err != nil {
		return fmt.Errorf("failed to create document log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get document log id: %w", err)
	}
	d.ID = id
	return nil
}

func (o *DocumentLogOperations) GetByID(ctx context.Context, id int64) (*DocumentLog, error) {
	d := &DocumentLog{}
	err := GetDB().QueryRowContext(ctx, GetDocumentLogByID, id).Scan(
		&d.ID, &d.SupplierDocID, &d.Account, &d.Name, &d.Requester,
		&d.Status, &d.Comment, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get document log: %w", err)
	}
	return d, nil
}

func (o *DocumentLogOperations) GetBySupplierID(ctx context.Context, supplierDocID, account string) (*DocumentLog, error) {
	d := &DocumentLog{}
	err := GetDB().QueryRowContext(ctx, GetDocumentLogBySupplierID, supplierDocID, account).Scan(
		&d.ID, &d.SupplierDocID, &d.Account, &d.Name, &d.Requester,
		&d.Status, &d.Comment, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get document log by supplier id: %w", err)
	}
	return d, nil
}

func (o *DocumentLogOperations) UpdateStatus(ctx context.Context, id int64, status, comment string) error {
	_, err := GetDB().ExecContext(ctx, UpdateDocumentLogStatus, status, comment, id)
	if err != nil {
		return fmt.Errorf("failed to update document log status: %w", err)
	}
	return nil
}

func (o *DocumentLogOperations) List(ctx context.Context, limit, offset int) ([]*DocumentLog, error) {
	rows, err := GetDB().QueryContext(ctx, ListDocumentLogs, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list document logs: %w", err)
	}
	defer rows.Close()

	var logs []*DocumentLog
	for rows.Next() {
		d := &DocumentLog{}
		if err := rows.Scan(
			&d.ID, &d.SupplierDocID, &d.Account, &d.Name, &d.Requester,
			&d.Status, &d.Comment, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document log: %w", err)
		}
		logs = append(logs, d)
	}
	return logs, rows.Err()
}

type PrinterOperations struct{}

func (o *PrinterOperations) CreatePrinter(ctx context.Context, p *Printer) error {
	result, err := GetDB().ExecContext(ctx, InsertPrinter,
		p.Name, p.Address, p.Port, p.Media, p.ColorCapable, p.DuplexCapable, p.Status)
	if err != nil {
		return fmt.Errorf("failed to create printer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get printer id: %w", err)
	}
	p.ID = id
	return nil
}

func (o *PrinterOperations) GetPrinterByName(ctx context.Context, name string) (*Printer, error) {
	p := &Printer{}
	err := GetDB().QueryRowContext(ctx, GetPrinterByName, name).Scan(
		&p.ID, &p.Name, &p.Address, &p.Port, &p.Media,
		&p.ColorCapable, &p.DuplexCapable, &p.Status, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get printer: %w", err)
	}
	return p, nil
}

func (o *PrinterOperations) ListPrinters(ctx context.Context) ([]*Printer, error) {
	rows, err := GetDB().QueryContext(ctx, ListPrinters)
	if err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}
	defer rows.Close()

	var printers []*Printer
	for rows.Next() {
		p := &Printer{}
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Address, &p.Port, &p.Media,
			&p.ColorCapable, &p.DuplexCapable, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan printer: %w", err)
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

func (o *PrinterOperations) UpdatePrinter(ctx context.Context, p *Printer) error {
	_, err := GetDB().ExecContext(ctx, UpdatePrinter,
		p.Address, p.Port, p.Media, p.ColorCapable, p.DuplexCapable, p.Name)
	if err != nil {
		return fmt.Errorf("failed to update printer: %w", err)
	}
	return nil
}

func (o *PrinterOperations) UpdateStatus(ctx context.Context, name, status string) error {
	_, err := GetDB().ExecContext(ctx, UpdatePrinterStatus, status, name)
	if err != nil {
		return fmt.Errorf("failed to update printer status: %w", err)
	}
	return nil
}

func (o *PrinterOperations) DeletePrinter(ctx context.Context, name string) error {
	_, err := GetDB().ExecContext(ctx, DeletePrinter, name)
	if err != nil {
		return fmt.Errorf("failed to delete printer: %w", err)
	}
	return nil
}

type DispatchOperations struct{}

func (o *DispatchOperations) CreateDispatchTx(tx *sql.Tx, d *DispatchRecord) error {
	result, err := tx.Exec(InsertDispatch,
		d.Correlation, d.DocumentLogID, d.Account, d.Mode, d.Printer,
		d.JobName, d.Status, d.AllocationJSON, d.Cost, d.ExpiresAt,
		d.Payload, d.SubmitJSON)
	if err != nil {
		return fmt.Errorf("failed to create dispatch record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get dispatch id: %w", err)
	}
	d.ID = id
	return nil
}

func (o *DispatchOperations) GetByCorrelation(ctx context.Context, correlation string) (*DispatchRecord, error) {
	return o.queryOne(ctx, GetDispatchByCorrelation, correlation)
}

func (o *DispatchOperations) GetByJobName(ctx context.Context, jobName string) (*DispatchRecord, error) {
	return o.queryOne(ctx, GetDispatchByJobName, jobName)
}

func (o *DispatchOperations) queryOne(ctx context.Context, query string, arg interface{}) (*DispatchRecord, error) {
	d := &DispatchRecord{}
	var expiresAt, completedAt sql.NullTime
	err := GetDB().QueryRowContext(ctx, query, arg).Scan(
		&d.ID, &d.Correlation, &d.DocumentLogID, &d.Account, &d.Mode, &d.Printer,
		&d.JobName, &d.Status, &d.AllocationJSON, &d.Cost,
		&d.CreatedAt, &expiresAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get dispatch record: %w", err)
	}
	if expiresAt.Valid {
		d.ExpiresAt = &expiresAt.Time
	}
	if completedAt.Valid {
		d.CompletedAt = &completedAt.Time
	}
	return d, nil
}

// GetPayload returns the stored payload and submit options of a held
// ticket. The payload is cleared when the record reaches a terminal state.
func (o *DispatchOperations) GetPayload(ctx context.Context, correlation string) ([]byte, string, error) {
	var payload []byte
	var submitJSON string
	err := GetDB().QueryRowContext(ctx, GetDispatchPayload, correlation).Scan(&payload, &submitJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", sql.ErrNoRows
		}
		return nil, "", fmt.Errorf("failed to get dispatch payload: %w", err)
	}
	return payload, submitJSON, nil
}

func (o *DispatchOperations) ListByStatus(ctx context.Context, status string, limit int) ([]*DispatchRecord, error) {
	rows, err := GetDB().QueryContext(ctx, ListDispatchesByStatus, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatch records: %w", err)
	}
	defer rows.Close()

	return scanDispatches(rows)
}

func (o *DispatchOperations) ListExpired(ctx context.Context, status string, before time.Time) ([]*DispatchRecord, error) {
	rows, err := GetDB().QueryContext(ctx, ListExpiredDispatches, status, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired dispatch records: %w", err)
	}
	defer rows.Close()

	return scanDispatches(rows)
}

func (o *DispatchOperations) List(ctx context.Context, filter DispatchFilter) ([]*DispatchRecord, error) {
	var conditions []string
	var args []interface{}

	if filter.Account != "" {
		conditions = append(conditions, "account = ?")
		args = append(args, filter.Account)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Mode != "" {
		conditions = append(conditions, "mode = ?")
		args = append(args, filter.Mode)
	}

	query := "SELECT id, correlation, document_log_id, account, mode, printer, job_name, status, allocation_json, cost, created_at, expires_at, completed_at FROM dispatch_records"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"

	limit := 100
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	args = append(args, limit, filter.Offset)

	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatch records: %w", err)
	}
	defer rows.Close()

	return scanDispatches(rows)
}

func (o *DispatchOperations) UpdateStatus(ctx context.Context, correlation, status string) error {
	_, err := GetDB().ExecContext(ctx, UpdateDispatchStatus, status, correlation)
	if err != nil {
		return fmt.Errorf("failed to update dispatch status: %w", err)
	}
	return nil
}

func (o *DispatchOperations) CompleteTx(tx *sql.Tx, correlation, status string, completedAt time.Time) error {
	_, err := tx.Exec(CompleteDispatch, status, completedAt, correlation)
	if err != nil {
		return fmt.Errorf("failed to complete dispatch: %w", err)
	}
	return nil
}

func scanDispatches(rows *sql.Rows) ([]*DispatchRecord, error) {
	var records []*DispatchRecord
	for rows.Next() {
		d := &DispatchRecord{}
		var expiresAt, completedAt sql.NullTime
		if err := rows.Scan(
			&d.ID, &d.Correlation, &d.DocumentLogID, &d.Account, &d.Mode, &d.Printer,
			&d.JobName, &d.Status, &d.AllocationJSON, &d.Cost,
			&d.CreatedAt, &expiresAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch record: %w", err)
		}
		if expiresAt.Valid {
			d.ExpiresAt = &expiresAt.Time
		}
		if completedAt.Valid {
			d.CompletedAt = &completedAt.Time
		}
		records = append(records, d)
	}
	return records, rows.Err()
}

type SettingsOperations struct{}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{Key: key}
	err := GetDB().QueryRowContext(ctx, GetSetting, key).Scan(&s.Value, &s.Encrypted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string, encrypted bool) error {
	_, err := GetDB().ExecContext(ctx, SetSetting, key, value, encrypted, value, encrypted)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

var (
	Accounts     = &AccountOperations{}
	Transactions = &TransactionOperations{}
	DocumentLogs = &DocumentLogOperations{}
	Printers     = &PrinterOperations{}
	Dispatches   = &DispatchOperations{}
	Settings     = &SettingsOperations{}
)
