// Package services orchestrates ledger operations: owner-scoped CRUD with
// balance reconciliation, default category seeding, and balance
// verification. Every mutating operation runs in a single database
// transaction; the matching event is published after commit.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/log"
	"bilancio/internal/storage"
)

// LedgerService is the entry point for the API layer, the CLI, and
// anything else that mutates the ledger. Balances are only ever touched
// here, through the reconciliation deltas.
type LedgerService struct {
	storage *storage.SQLiteRepository
	events  *amqp.Client // optional, nil disables publishing
}

func NewLedgerService(storage *storage.SQLiteRepository, events *amqp.Client) *LedgerService {
	return &LedgerService{
		storage: storage,
		events:  events,
	}
}

// TransactionInput carries the caller-controlled fields of a transaction.
type TransactionInput struct {
	AccountID   string
	CategoryID  string // empty for uncategorized
	Amount      decimal.Decimal
	Date        core.Date
	Description string
}

// TransferInput carries the caller-controlled fields of a transfer.
type TransferInput struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Date          core.Date
	Description   string
}

// --- users ---

// CreateUser registers a user and synchronously seeds the default
// category set. Seeding happens in the same transaction: a user never
// exists without their categories.
func (s *LedgerService) CreateUser(ctx context.Context, username string) (core.User, error) {
	user := core.User{ID: uuid.NewString(), Username: username}
	if err := user.Validate(); err != nil {
		return core.User{}, fmt.Errorf("validate user: %w", err)
	}

	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if err := q.CreateUser(ctx, user); err != nil {
			return err
		}
		return seedCategories(ctx, q, user.ID)
	})
	if err != nil {
		return core.User{}, err
	}

	slog.InfoContext(ctx, "User created and categories seeded",
		log.FieldUsername, user.Username,
		log.FieldOwnerID, user.ID)
	return user, nil
}

func (s *LedgerService) GetUser(ctx context.Context, id string) (core.User, error) {
	return s.storage.GetUser(ctx, id)
}

func (s *LedgerService) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return s.storage.GetUserByUsername(ctx, username)
}

// SeedDefaultCategories re-runs the seeding for an existing user. It is
// idempotent: categories already present are left alone.
func (s *LedgerService) SeedDefaultCategories(ctx context.Context, ownerID string) error {
	return s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetUser(ctx, ownerID); err != nil {
			return fmt.Errorf("user: %w", err)
		}
		return seedCategories(ctx, q, ownerID)
	})
}

func seedCategories(ctx context.Context, q *storage.Queries, ownerID string) error {
	for _, dc := range core.DefaultCategories {
		candidate := core.Category{
			ID:      uuid.NewString(),
			Name:    dc.Name,
			Type:    dc.Type,
			OwnerID: ownerID,
		}
		if _, err := q.GetOrCreateCategory(ctx, candidate); err != nil {
			return fmt.Errorf("seed category %q: %w", dc.Name, err)
		}
	}
	return nil
}

// --- accounts ---

// CreateAccount opens an account with the given opening balance. The
// opening balance is recorded separately so verification can compare the
// stored balance against opening plus journal effects.
func (s *LedgerService) CreateAccount(ctx context.Context, ownerID, name string, openingBalance decimal.Decimal) (core.Account, error) {
	account := core.Account{
		ID:             uuid.NewString(),
		Name:           name,
		Balance:        openingBalance,
		OpeningBalance: openingBalance,
		OwnerID:        ownerID,
	}
	if err := account.Validate(); err != nil {
		return core.Account{}, fmt.Errorf("validate account: %w", err)
	}

	if err := s.storage.CreateAccount(ctx, account); err != nil {
		return core.Account{}, err
	}

	slog.InfoContext(ctx, "Account created",
		log.FieldAccountID, account.ID,
		log.FieldOwnerID, ownerID)
	return account, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, ownerID, id string) (core.Account, error) {
	return s.storage.GetAccount(ctx, id, ownerID)
}

func (s *LedgerService) ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error) {
	return s.storage.ListAccounts(ctx, ownerID)
}

// RenameAccount changes the display name. The balance is not writable
// from outside the reconciliation engine.
func (s *LedgerService) RenameAccount(ctx context.Context, ownerID, id, name string) (core.Account, error) {
	probe := core.Account{ID: id, Name: name, OwnerID: ownerID}
	if err := probe.Validate(); err != nil {
		return core.Account{}, fmt.Errorf("validate account: %w", err)
	}
	if err := s.storage.RenameAccount(ctx, id, ownerID, name); err != nil {
		return core.Account{}, err
	}
	return s.storage.GetAccount(ctx, id, ownerID)
}

// DeleteAccount removes an account with its transactions and transfers.
// Transfers touching another account have their effect on that
// counterparty reversed first, matching what per-row cascade deletion
// would have done.
func (s *LedgerService) DeleteAccount(ctx context.Context, ownerID, id string) error {
	var skipped []amqp.DriftAlert

	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetAccount(ctx, id, ownerID); err != nil {
			return err
		}

		transfers, err := q.ListTransfersByAccount(ctx, id)
		if err != nil {
			return err
		}
		for _, tr := range transfers {
			before := &ledger.TransferSnapshot{
				FromAccountID: tr.FromAccountID,
				ToAccountID:   tr.ToAccountID,
				Amount:        tr.Amount,
			}
			drifts, err := applyAdjustments(ctx, q, ledger.TransferDeltas(before, nil), amqp.EntityTransfer, tr.ID)
			if err != nil {
				return err
			}
			skipped = append(skipped, drifts...)
			if err := q.DeleteTransfer(ctx, tr.ID, tr.OwnerID); err != nil {
				return err
			}
		}

		// Transactions on this account only ever affected this account's
		// balance, which is going away with it; the schema cascades them.
		return q.DeleteAccount(ctx, id, ownerID)
	})
	if err != nil {
		return err
	}

	s.publishDrifts(ctx, skipped)
	slog.InfoContext(ctx, "Account deleted",
		log.FieldAccountID, id,
		log.FieldOwnerID, ownerID)
	return nil
}

// --- categories ---

func (s *LedgerService) CreateCategory(ctx context.Context, ownerID, name string, typ core.CategoryType) (core.Category, error) {
	category := core.Category{
		ID:      uuid.NewString(),
		Name:    name,
		Type:    typ,
		OwnerID: ownerID,
	}
	if err := category.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("validate category: %w", err)
	}
	if err := s.storage.CreateCategory(ctx, category); err != nil {
		return core.Category{}, err
	}
	return category, nil
}

func (s *LedgerService) GetCategory(ctx context.Context, ownerID, id string) (core.Category, error) {
	return s.storage.GetCategory(ctx, id, ownerID)
}

func (s *LedgerService) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	return s.storage.ListCategories(ctx, ownerID)
}

// UpdateCategory changes name and type. Changing the type alters future
// effect calculations only; effects already applied stay as they were.
func (s *LedgerService) UpdateCategory(ctx context.Context, ownerID, id, name string, typ core.CategoryType) (core.Category, error) {
	category := core.Category{ID: id, Name: name, Type: typ, OwnerID: ownerID}
	if err := category.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("validate category: %w", err)
	}
	if err := s.storage.UpdateCategory(ctx, category); err != nil {
		return core.Category{}, err
	}
	return category, nil
}

// DeleteCategory removes a category. Transactions referencing it survive
// with the reference nulled out; their future effect becomes zero, their
// already-applied effects are not reversed.
func (s *LedgerService) DeleteCategory(ctx context.Context, ownerID, id string) error {
	return s.storage.DeleteCategory(ctx, id, ownerID)
}

// --- transactions ---

func (s *LedgerService) CreateTransaction(ctx context.Context, ownerID string, in TransactionInput) (core.Transaction, error) {
	tx := core.Transaction{
		ID:          uuid.NewString(),
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		Date:        in.Date,
		Description: in.Description,
		OwnerID:     ownerID,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validate transaction: %w", err)
	}

	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetAccount(ctx, in.AccountID, ownerID); err != nil {
			return fmt.Errorf("account: %w", err)
		}
		category, err := loadCategory(ctx, q, in.CategoryID, ownerID)
		if err != nil {
			return err
		}
		if err := q.CreateTransaction(ctx, tx); err != nil {
			return err
		}

		after := &ledger.TransactionSnapshot{AccountID: tx.AccountID, Amount: tx.Amount, Category: category}
		_, err = applyAdjustments(ctx, q, ledger.TransactionDeltas(nil, after), amqp.EntityTransaction, tx.ID)
		return err
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.publishEvent(ctx, &amqp.LedgerEvent{
		Entity:    amqp.EntityTransaction,
		Op:        amqp.OpCreated,
		EntityID:  tx.ID,
		OwnerID:   ownerID,
		Timestamp: time.Now().UTC(),
	})
	return tx, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	return s.storage.GetTransaction(ctx, id, ownerID)
}

func (s *LedgerService) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	return s.storage.ListTransactions(ctx, ownerID)
}

// UpdateTransaction replaces a transaction's fields and reconciles the
// affected balances. The prior state is read from the same database
// transaction that performs the update, so the reversal is always based
// on the last-committed values.
func (s *LedgerService) UpdateTransaction(ctx context.Context, ownerID, id string, in TransactionInput) (core.Transaction, error) {
	updated := core.Transaction{
		ID:          id,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		Date:        in.Date,
		Description: in.Description,
		OwnerID:     ownerID,
	}
	if err := updated.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validate transaction: %w", err)
	}

	var skipped []amqp.DriftAlert
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		prior, err := q.GetTransaction(ctx, id, ownerID)
		if err != nil {
			return err
		}
		priorCategory, err := loadCategory(ctx, q, prior.CategoryID, ownerID)
		if err != nil {
			return err
		}

		if _, err := q.GetAccount(ctx, in.AccountID, ownerID); err != nil {
			return fmt.Errorf("account: %w", err)
		}
		newCategory, err := loadCategory(ctx, q, in.CategoryID, ownerID)
		if err != nil {
			return err
		}

		if err := q.UpdateTransaction(ctx, updated); err != nil {
			return err
		}

		before := &ledger.TransactionSnapshot{AccountID: prior.AccountID, Amount: prior.Amount, Category: priorCategory}
		after := &ledger.TransactionSnapshot{AccountID: updated.AccountID, Amount: updated.Amount, Category: newCategory}
		skipped, err = applyAdjustments(ctx, q, ledger.TransactionDeltas(before, after), amqp.EntityTransaction, id)
		return err
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.publishDrifts(ctx, skipped)
	s.publishEvent(ctx, &amqp.LedgerEvent{
		Entity:    amqp.EntityTransaction,
		Op:        amqp.OpUpdated,
		EntityID:  id,
		OwnerID:   ownerID,
		Timestamp: time.Now().UTC(),
	})
	return updated, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	var (
		skipped []amqp.DriftAlert
		removed *amqp.RemovedEntry
	)
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		prior, err := q.GetTransaction(ctx, id, ownerID)
		if err != nil {
			return err
		}
		priorCategory, err := loadCategory(ctx, q, prior.CategoryID, ownerID)
		if err != nil {
			return err
		}
		removed = removedTransaction(ctx, q, prior, priorCategory)

		if err := q.DeleteTransaction(ctx, id, ownerID); err != nil {
			return err
		}

		before := &ledger.TransactionSnapshot{AccountID: prior.AccountID, Amount: prior.Amount, Category: priorCategory}
		skipped, err = applyAdjustments(ctx, q, ledger.TransactionDeltas(before, nil), amqp.EntityTransaction, id)
		return err
	})
	if err != nil {
		return err
	}

	s.publishDrifts(ctx, skipped)
	s.publishEvent(ctx, &amqp.LedgerEvent{
		Entity:    amqp.EntityTransaction,
		Op:        amqp.OpDeleted,
		EntityID:  id,
		OwnerID:   ownerID,
		Removed:   removed,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// --- transfers ---

func (s *LedgerService) CreateTransfer(ctx context.Context, ownerID string, in TransferInput) (core.Transfer, error) {
	tr := core.Transfer{
		ID:            uuid.NewString(),
		FromAccountID: in.FromAccountID,
		ToAccountID:   in.ToAccountID,
		Amount:        in.Amount,
		Date:          in.Date,
		Description:   in.Description,
		OwnerID:       ownerID,
	}
	if err := tr.Validate(); err != nil {
		return core.Transfer{}, fmt.Errorf("validate transfer: %w", err)
	}

	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetAccount(ctx, in.FromAccountID, ownerID); err != nil {
			return fmt.Errorf("source account: %w", err)
		}
		if _, err := q.GetAccount(ctx, in.ToAccountID, ownerID); err != nil {
			return fmt.Errorf("destination account: %w", err)
		}
		if err := q.CreateTransfer(ctx, tr); err != nil {
			return err
		}

		after := &ledger.TransferSnapshot{FromAccountID: tr.FromAccountID, ToAccountID: tr.ToAccountID, Amount: tr.Amount}
		_, err := applyAdjustments(ctx, q, ledger.TransferDeltas(nil, after), amqp.EntityTransfer, tr.ID)
		return err
	})
	if err != nil {
		return core.Transfer{}, err
	}

	s.publishEvent(ctx, &amqp.LedgerEvent{
		Entity:    amqp.EntityTransfer,
		Op:        amqp.OpCreated,
		EntityID:  tr.ID,
		OwnerID:   ownerID,
		Timestamp: time.Now().UTC(),
	})
	return tr, nil
}

func (s *LedgerService) GetTransfer(ctx context.Context, ownerID, id string) (core.Transfer, error) {
	return s.storage.GetTransfer(ctx, id, ownerID)
}

func (s *LedgerService) ListTransfers(ctx context.Context, ownerID string) ([]core.Transfer, error) {
	return s.storage.ListTransfers(ctx, ownerID)
}

// UpdateTransfer replaces a transfer and reconciles all involved
// accounts: the prior amount is restored on the prior pair and the new
// amount applied to the new pair, whether or not they overlap.
func (s *LedgerService) UpdateTransfer(ctx context.Context, ownerID, id string, in TransferInput) (core.Transfer, error) {
	updated := core.Transfer{
		ID:            id,
		FromAccountID: in.FromAccountID,
		ToAccountID:   in.ToAccountID,
		Amount:        in.Amount,
		Date:          in.Date,
		Description:   in.Description,
		OwnerID:       ownerID,
	}
	if err := updated.Validate(); err != nil {
		return core.Transfer{}, fmt.Errorf("validate transfer: %w", err)
	}

	var skipped []amqp.DriftAlert
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		prior, err := q.GetTransfer(ctx, id, ownerID)
		if err != nil {
			return err
		}
		if _, err := q.GetAccount(ctx, in.FromAccountID, ownerID); err != nil {
			return fmt.Errorf("source account: %w", err)
		}
		if _, err := q.GetAccount(ctx, in.ToAccountID, ownerID); err != nil {
			return fmt.Errorf("destination account: %w", err)
		}
		if err := q.UpdateTransfer(ctx, updated); err != nil {
			return err
		}

		before := &ledger.TransferSnapshot{FromAccountID: prior.FromAccountID, ToAccountID: prior.ToAccountID, Amount: prior.Amount}
		after := &ledger.TransferSnapshot{FromAccountID: updated.FromAccountID, ToAccountID: updated.ToAccountID, Amount: updated.Amount}
		skipped, err = applyAdjustments(ctx, q, ledger.TransferDeltas(before, after), amqp.EntityTransfer, id)
		return err
	})
	if err != nil {
		return core.Transfer{}, err
	}

	s.publishDrifts(ctx, skipped)
	s.publishEvent(ctx, &amqp.LedgerEvent{
		Entity:    amqp.EntityTransfer,
		Op:        amqp.OpUpdated,
		EntityID:  id,
		OwnerID:   ownerID,
		Timestamp: time.Now().UTC(),
	})
	return updated, nil
}

func (s *LedgerService) DeleteTransfer(ctx context.Context, ownerID, id string) error {
	var (
		skipped []amqp.DriftAlert
		removed *amqp.RemovedEntry
	)
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		prior, err := q.GetTransfer(ctx, id, ownerID)
		if err != nil {
			return err
		}
		removed = removedTransfer(ctx, q, prior)

		if err := q.DeleteTransfer(ctx, id, ownerID); err != nil {
			return err
		}

		before := &ledger.TransferSnapshot{FromAccountID: prior.FromAccountID, ToAccountID: prior.ToAccountID, Amount: prior.Amount}
		skipped, err = applyAdjustments(ctx, q, ledger.TransferDeltas(before, nil), amqp.EntityTransfer, id)
		return err
	})
	if err != nil {
		return err
	}

	s.publishDrifts(ctx, skipped)
	s.publishEvent(ctx, &amqp.LedgerEvent{
		Entity:    amqp.EntityTransfer,
		Op:        amqp.OpDeleted,
		EntityID:  id,
		OwnerID:   ownerID,
		Removed:   removed,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// --- reconciliation plumbing ---

// applyAdjustments executes the deltas with atomic increments. A reversal
// whose account is gone is skipped and reported; any other miss aborts
// the transaction.
func applyAdjustments(ctx context.Context, q *storage.Queries, adjs []ledger.Adjustment, entity, entityID string) ([]amqp.DriftAlert, error) {
	var skipped []amqp.DriftAlert
	for _, adj := range adjs {
		deltaCents := core.Cents(adj.Delta)
		applied, err := q.AdjustBalance(ctx, adj.AccountID, deltaCents)
		if err != nil {
			return nil, err
		}
		if applied {
			continue
		}
		if !adj.Reversal {
			return nil, fmt.Errorf("account %s: %w", adj.AccountID, storage.ErrNotFound)
		}

		slog.WarnContext(ctx, "Skipping balance reversal, account no longer exists",
			log.FieldAccountID, adj.AccountID,
			log.FieldDeltaCents, deltaCents,
			log.FieldEntity, entity,
			log.FieldEntityID, entityID)
		skipped = append(skipped, amqp.DriftAlert{
			AccountID:  adj.AccountID,
			DeltaCents: deltaCents,
			Entity:     entity,
			EntityID:   entityID,
			Timestamp:  time.Now().UTC(),
		})
	}
	return skipped, nil
}

// loadCategory resolves an optional category reference, scoped to the
// owner. A missing row maps to nil: the reference may have been nulled by
// a concurrent category deletion.
func loadCategory(ctx context.Context, q *storage.Queries, categoryID, ownerID string) (*core.Category, error) {
	if categoryID == "" {
		return nil, nil
	}
	category, err := q.GetCategory(ctx, categoryID, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("category: %w", err)
	}
	return &category, nil
}

func removedTransaction(ctx context.Context, q *storage.Queries, tx core.Transaction, category *core.Category) *amqp.RemovedEntry {
	entry := &amqp.RemovedEntry{
		AmountCents: core.Cents(tx.Amount),
		Date:        tx.Date.String(),
		Description: tx.Description,
	}
	if account, err := q.GetAccount(ctx, tx.AccountID, tx.OwnerID); err == nil {
		entry.Account = account.Name
	}
	if category != nil {
		entry.Category = category.Name
	}
	return entry
}

func removedTransfer(ctx context.Context, q *storage.Queries, tr core.Transfer) *amqp.RemovedEntry {
	entry := &amqp.RemovedEntry{
		AmountCents: core.Cents(tr.Amount),
		Date:        tr.Date.String(),
		Description: tr.Description,
	}
	if from, err := q.GetAccount(ctx, tr.FromAccountID, tr.OwnerID); err == nil {
		entry.FromAccount = from.Name
	}
	if to, err := q.GetAccount(ctx, tr.ToAccountID, tr.OwnerID); err == nil {
		entry.ToAccount = to.Name
	}
	return entry
}

func (s *LedgerService) publishEvent(ctx context.Context, event *amqp.LedgerEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, event); err != nil {
		// The mutation is committed; losing an export event is not worth
		// failing the request over.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldError, err,
			log.FieldEntity, event.Entity,
			log.FieldEntityID, event.EntityID)
	}
}

func (s *LedgerService) publishDrifts(ctx context.Context, drifts []amqp.DriftAlert) {
	if s.events == nil {
		return
	}
	for i := range drifts {
		if err := s.events.PublishDriftAlert(ctx, &drifts[i]); err != nil {
			slog.ErrorContext(ctx, "Failed to publish drift alert",
				log.FieldError, err,
				log.FieldAccountID, drifts[i].AccountID)
		}
	}
}
