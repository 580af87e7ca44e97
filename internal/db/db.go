package db

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

var (
	db   *sql.DB
	once sync.Once
)

type Config struct {
	Path string
}

func Init(cfg Config) error {
	var initErr error
	once.Do(func() {
		db, initErr = sql.Open("sqlite3", cfg.Path)
		if initErr != nil {
			return
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		initErr = runMigrations(db)
	})
	return initErr
}

func GetDB() *sql.DB {
	return db
}

func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

type Migration struct {
	Version string
	SQL     string
}

var migrations = []Migration{
	{
		Version: "001_accounts",
		SQL: `
			CREATE TABLE IF NOT EXISTS accounts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				kind TEXT NOT NULL DEFAULT 'user',
				parent_id INTEGER,
				balance REAL NOT NULL DEFAULT 0,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
			CREATE TABLE IF NOT EXISTS account_transactions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				account_id INTEGER NOT NULL,
				dispatch_id TEXT NOT NULL DEFAULT '',
				amount REAL NOT NULL,
				weight INTEGER NOT NULL DEFAULT 0,
				weight_unit INTEGER NOT NULL DEFAULT 0,
				narrative TEXT NOT NULL DEFAULT '',
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (account_id) REFERENCES accounts(id)
			);
		`,
	},
	{
		Version: "002_document_logs",
		SQL: `
			CREATE TABLE IF NOT EXISTS document_logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				supplier_doc_id TEXT NOT NULL,
				account TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				requester TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT '',
				comment TEXT NOT NULL DEFAULT '',
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_document_logs_supplier
				ON document_logs(supplier_doc_id, account);
		`,
	},
	{
		Version: "003_printers",
		SQL: `
			CREATE TABLE IF NOT EXISTS printers (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				address TEXT NOT NULL,
				port INTEGER NOT NULL DEFAULT 9100,
				media TEXT NOT NULL DEFAULT 'A4',
				color_capable INTEGER NOT NULL DEFAULT 0,
				duplex_capable INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'unknown',
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
	{
		Version: "004_dispatch_records",
		SQL: `
			CREATE TABLE IF NOT EXISTS dispatch_records (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				correlation TEXT NOT NULL UNIQUE,
				document_log_id INTEGER NOT NULL,
				account TEXT NOT NULL,
				mode TEXT NOT NULL,
				printer TEXT NOT NULL,
				job_name TEXT NOT NULL,
				status TEXT NOT NULL,
				allocation_json TEXT NOT NULL DEFAULT '',
				cost REAL NOT NULL DEFAULT 0,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				expires_at DATETIME,
				completed_at DATETIME,
				FOREIGN KEY (document_log_id) REFERENCES document_logs(id)
			);
			CREATE INDEX IF NOT EXISTS idx_dispatch_records_status
				ON dispatch_records(status);
		`,
	},
	{
		Version: "005_settings",
		SQL: `
			CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				encrypted INTEGER NOT NULL DEFAULT 0,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
	{
		Version: "006_dispatch_payloads",
		SQL: `
			ALTER TABLE dispatch_records ADD COLUMN payload BLOB;
			ALTER TABLE dispatch_records ADD COLUMN submit_json TEXT NOT NULL DEFAULT '';
		`,
	},
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
	}

	return nil
}
