package db

const (
	InsertAccount = `
		INSERT INTO accounts (name, kind, parent_id, balance)
		VALUES (?, ?, ?, ?)
	`

	GetAccountByName = `
		SELECT id, name, kind, parent_id, balance, created_at, updated_at
		FROM accounts WHERE name = ?
	`

	GetAccountByID = `
		SELECT id, name, kind, parent_id, balance, created_at, updated_at
		FROM accounts WHERE id = ?
	`

	ListAccountsByKind = `
		SELECT id, name, kind, parent_id, balance, created_at, updated_at
		FROM accounts WHERE kind = ? ORDER BY name ASC LIMIT ? OFFSET ?
	`

	AdjustAccountBalance = `
		UPDATE accounts SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	DeleteAccount = `DELETE FROM accounts WHERE id = ?`
)

const (
	InsertTransaction = `
		INSERT INTO account_transactions (account_id, dispatch_id, amount, weight, weight_unit, narrative)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	ListTransactionsByAccount = `
		SELECT id, account_id, dispatch_id, amount, weight, weight_unit, narrative, created_at
		FROM account_transactions WHERE account_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?
	`

	ListTransactionsByDispatch = `
		SELECT id, account_id, dispatch_id, amount, weight, weight_unit, narrative, created_at
		FROM account_transactions WHERE dispatch_id = ? ORDER BY id ASC
	`

	CountTransactionsByDispatch = `
		SELECT COUNT(*) FROM account_transactions WHERE dispatch_id = ?
	`
)

const (
	InsertDocumentLog = `
		INSERT INTO document_logs (supplier_doc_id, account, name, requester, status, comment)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	GetDocumentLogByID = `
		SELECT id, supplier_doc_id, account, name, requester, status, comment, created_at, updated_at
		FROM document_logs WHERE id = ?
	`

	GetDocumentLogBySupplierID = `
		SELECT id, supplier_doc_id, account, name, requester, status, comment, created_at, updated_at
		FROM document_logs WHERE supplier_doc_id = ? AND account = ?
		ORDER BY id DESC LIMIT 1
	`

	UpdateDocumentLogStatus = `
		UPDATE document_logs SET status = ?, comment = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	ListDocumentLogs = `
		SELECT id, supplier_doc_id, account, name, requester, status, comment, created_at, updated_at
		FROM document_logs ORDER BY created_at DESC LIMIT ? OFFSET ?
	`
)

const (
	InsertPrinter = `
		INSERT INTO printers (name, address, port, media, color_capable, duplex_capable, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	GetPrinterByName = `
		SELECT id, name, address, port, media, color_capable, duplex_capable, status, created_at
		FROM printers WHERE name = ?
	`

	ListPrinters = `
		SELECT id, name, address, port, media, color_capable, duplex_capable, status, created_at
		FROM printers ORDER BY name ASC
	`

	UpdatePrinter = `
		UPDATE printers SET address = ?, port = ?, media = ?, color_capable = ?, duplex_capable = ? WHERE name = ?
	`

	UpdatePrinterStatus = `
		UPDATE printers SET status = ? WHERE name = ?
	`

	DeletePrinter = `DELETE FROM printers WHERE name = ?`
)

const (
	InsertDispatch = `
		INSERT INTO dispatch_records (correlation, document_log_id, account, mode, printer, job_name, status, allocation_json, cost, expires_at, payload, submit_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetDispatchPayload = `
		SELECT payload, submit_json FROM dispatch_records WHERE correlation = ?
	`

	GetDispatchByCorrelation = `
		SELECT id, correlation, document_log_id, account, mode, printer, job_name, status, allocation_json, cost, created_at, expires_at, completed_at
		FROM dispatch_records WHERE correlation = ?
	`

	GetDispatchByJobName = `
		SELECT id, correlation, document_log_id, account, mode, printer, job_name, status, allocation_json, cost, created_at, expires_at, completed_at
		FROM dispatch_records WHERE job_name = ?
	`

	ListDispatchesByStatus = `
		SELECT id, correlation, document_log_id, account, mode, printer, job_name, status, allocation_json, cost, created_at, expires_at, completed_at
		FROM dispatch_records WHERE status = ? ORDER BY created_at ASC LIMIT ?
	`

	ListExpiredDispatches = `
		SELECT id, correlation, document_log_id, account, mode, printer, job_name, status, allocation_json, cost, created_at, expires_at, completed_at
		FROM dispatch_records WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?
	`

	UpdateDispatchStatus = `
		UPDATE dispatch_records SET status = ? WHERE correlation = ?
	`

	CompleteDispatch = `
		UPDATE dispatch_records SET status = ?, completed_at = ?, payload = NULL WHERE correlation = ?
	`
)

const (
	GetSetting = `SELECT value, encrypted FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, encrypted, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, encrypted = ?, updated_at = CURRENT_TIMESTAMP
	`
)
