package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/printworks/relay/internal/db"
)

var ErrUnknownUser = errors.New("user not present in directory")

// Directory is the external user directory used for lazy provisioning. A nil
// directory means unknown users are rejected instead of provisioned.
type Directory interface {
	Lookup(ctx context.Context, username string) (bool, error)
}

// TxSpec describes one weighted ledger transaction before it is committed.
// Amount is the entity's signed share of the cost; Weight and WeightUnit
// record the proportion it was derived from (entity copies over the
// document total).
type TxSpec struct {
	AccountName string
	Kind        db.AccountKind
	Amount      float64
	Weight      int
	WeightUnit  int
	Narrative   string
}

// Service owns the shared mutable ledger. Every writer takes the per-user
// row lock before mutating that user's balance; the gate suspends new
// writing sections during maintenance windows.
type Service struct {
	database  *sql.DB
	directory Directory
	gate      *Gate

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func NewService(database *sql.DB, directory Directory) *Service {
	return &Service{
		database:  database,
		directory: directory,
		gate:      NewGate(),
		userLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) Gate() *Gate {
	return s.gate
}

func (s *Service) userLock(username string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.userLocks[username]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[username] = lock
	}
	return lock
}

// WithUserLock runs fn while holding the exclusive row lock for the given
// user. Network calls must happen outside fn.
func (s *Service) WithUserLock(username string, fn func() error) error {
	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// EnsureUserAccount returns the user's ledger account, provisioning it from
// the directory when absent. Users the directory does not know are rejected.
func (s *Service) EnsureUserAccount(ctx context.Context, username string) (*db.Account, error) {
	account, err := db.Accounts.GetAccountByName(ctx, username)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if s.directory == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}
	known, err := s.directory.Lookup(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("directory lookup for %s: %w", username, err)
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}

	account = &db.Account{Name: username, Kind: db.AccountUser}
	if err := db.Accounts.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// EnsureGroupAccount returns the shared parent account for a group,
// creating it on first use.
func (s *Service) EnsureGroupAccount(ctx context.Context, group string) (*db.Account, error) {
	account, err := db.Accounts.GetAccountByName(ctx, group)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	account = &db.Account{Name: group, Kind: db.AccountGroup}
	if err := db.Accounts.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// CommitDispatch persists a dispatch record together with its ledger
// transactions in one database transaction, under the responsible user's
// row lock and inside the gate. All-or-nothing.
func (s *Service) CommitDispatch(ctx context.Context, lockUser string, record *db.DispatchRecord, specs []TxSpec) error {
	s.gate.Enter()
	defer s.gate.Leave()

	return s.WithUserLock(lockUser, func() error {
		accountIDs, err := s.resolveAccounts(ctx, specs)
		if err != nil {
			return err
		}

		tx, err := s.database.Begin()
		if err != nil {
			return fmt.Errorf("begin dispatch commit: %w", err)
		}
		defer tx.Rollback()

		if err := db.Dispatches.CreateDispatchTx(tx, record); err != nil {
			return err
		}
		if err := s.applyTx(tx, record.Correlation, specs, accountIDs); err != nil {
			return err
		}

		return tx.Commit()
	})
}

// SettleDispatch marks a dispatch terminal and applies its deferred
// transactions atomically. Used by the completion monitor for AUTO jobs.
func (s *Service) SettleDispatch(ctx context.Context, lockUser string, correlation, status string, specs []TxSpec) error {
	s.gate.Enter()
	defer s.gate.Leave()

	return s.WithUserLock(lockUser, func() error {
		accountIDs, err := s.resolveAccounts(ctx, specs)
		if err != nil {
			return err
		}

		tx, err := s.database.Begin()
		if err != nil {
			return fmt.Errorf("begin dispatch settlement: %w", err)
		}
		defer tx.Rollback()

		if err := db.Dispatches.CompleteTx(tx, correlation, status, time.Now()); err != nil {
			return err
		}
		if err := s.applyTx(tx, correlation, specs, accountIDs); err != nil {
			return err
		}

		return tx.Commit()
	})
}

func (s *Service) resolveAccounts(ctx context.Context, specs []TxSpec) (map[string]int64, error) {
	ids := make(map[string]int64, len(specs))
	for _, spec := range specs {
		if _, ok := ids[spec.AccountName]; ok {
			continue
		}
		var account *db.Account
		var err error
		if spec.Kind == db.AccountGroup {
			account, err = s.EnsureGroupAccount(ctx, spec.AccountName)
		} else {
			account, err = s.EnsureUserAccount(ctx, spec.AccountName)
		}
		if err != nil {
			return nil, err
		}
		ids[spec.AccountName] = account.ID
	}
	return ids, nil
}

func (s *Service) applyTx(tx *sql.Tx, correlation string, specs []TxSpec, accountIDs map[string]int64) error {
	for _, spec := range specs {
		accountID := accountIDs[spec.AccountName]
		t := &db.AccountTransaction{
			AccountID:  accountID,
			DispatchID: correlation,
			Amount:     spec.Amount,
			Weight:     spec.Weight,
			WeightUnit: spec.WeightUnit,
			Narrative:  spec.Narrative,
		}
		if err := db.Transactions.CreateTransactionTx(tx, t); err != nil {
			return err
		}
		if err := db.Accounts.AdjustBalanceTx(tx, accountID, spec.Amount); err != nil {
			return err
		}
	}
	return nil
}
