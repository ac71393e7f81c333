// Package worker turns ledger events into statement rows on the export
// target. The export is an append-only journal: updates and deletions
// get their own rows instead of rewriting earlier ones.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/export"
	"bilancio/internal/log"
	"bilancio/internal/storage"
)

type ExportWorker struct {
	storage *storage.SQLiteRepository
	writer  export.StatementWriter
}

func NewExportWorker(storage *storage.SQLiteRepository, writer export.StatementWriter) *ExportWorker {
	return &ExportWorker{
		storage: storage,
		writer:  writer,
	}
}

// HandleEnvelope is the queue consumer entry point. Returning an error
// requeues the message, so only retryable failures (storage, export
// target) propagate; malformed or stale events are logged and dropped.
func (w *ExportWorker) HandleEnvelope(ctx context.Context, env *amqp.Envelope) error {
	switch env.Kind {
	case amqp.KindLedgerEvent:
		return w.handleEvent(ctx, env.Event)
	case amqp.KindDriftAlert:
		w.handleDrift(ctx, env.Drift)
		return nil
	default:
		slog.WarnContext(ctx, "Dropping envelope of unknown kind", "kind", env.Kind)
		return nil
	}
}

func (w *ExportWorker) handleEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	var (
		row export.StatementRow
		err error
	)
	switch {
	case event.Op == amqp.OpDeleted:
		row, err = w.removedRow(event)
	case event.Entity == amqp.EntityTransaction:
		row, err = w.transactionRow(ctx, event)
	case event.Entity == amqp.EntityTransfer:
		row, err = w.transferRow(ctx, event)
	default:
		err = fmt.Errorf("unknown entity %q", event.Entity)
	}
	if errors.Is(err, storage.ErrNotFound) {
		// The entry was mutated again before we got here; a later event
		// carries the final state.
		slog.InfoContext(ctx, "Skipping export of superseded event",
			log.FieldEntity, event.Entity,
			log.FieldEntityID, event.EntityID)
		return nil
	}
	if err != nil {
		return err
	}

	if err := w.writer.Append(ctx, row); err != nil {
		return fmt.Errorf("append statement row: %w", err)
	}
	slog.InfoContext(ctx, "Exported statement row",
		log.FieldEntity, event.Entity,
		log.FieldEntityID, event.EntityID,
		log.FieldOperation, event.Op)
	return nil
}

func (w *ExportWorker) transactionRow(ctx context.Context, event *amqp.LedgerEvent) (export.StatementRow, error) {
	tx, err := w.storage.GetTransaction(ctx, event.EntityID, event.OwnerID)
	if err != nil {
		return export.StatementRow{}, err
	}
	account, err := w.storage.GetAccount(ctx, tx.AccountID, event.OwnerID)
	if err != nil {
		return export.StatementRow{}, err
	}

	var category *core.Category
	if tx.CategoryID != "" {
		c, err := w.storage.GetCategory(ctx, tx.CategoryID, event.OwnerID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return export.StatementRow{}, err
		}
		if err == nil {
			category = &c
		}
	}

	row := export.StatementRow{
		Date:        tx.Date.String(),
		Op:          event.Op,
		Account:     account.Name,
		Description: tx.Description,
		Amount:      core.Effect(tx.Amount, category).StringFixed(2),
	}
	if category != nil {
		row.Category = category.Name
	}
	return row, nil
}

func (w *ExportWorker) transferRow(ctx context.Context, event *amqp.LedgerEvent) (export.StatementRow, error) {
	tr, err := w.storage.GetTransfer(ctx, event.EntityID, event.OwnerID)
	if err != nil {
		return export.StatementRow{}, err
	}
	from, err := w.storage.GetAccount(ctx, tr.FromAccountID, event.OwnerID)
	if err != nil {
		return export.StatementRow{}, err
	}
	to, err := w.storage.GetAccount(ctx, tr.ToAccountID, event.OwnerID)
	if err != nil {
		return export.StatementRow{}, err
	}

	return export.StatementRow{
		Date:        tr.Date.String(),
		Op:          event.Op,
		Account:     fmt.Sprintf("%s -> %s", from.Name, to.Name),
		Category:    "Transfer",
		Description: tr.Description,
		Amount:      tr.Amount.StringFixed(2),
	}, nil
}

// removedRow builds the row from the payload carried in the event; the
// database rows are already gone.
func (w *ExportWorker) removedRow(event *amqp.LedgerEvent) (export.StatementRow, error) {
	removed := event.Removed
	if removed == nil {
		return export.StatementRow{}, fmt.Errorf("deleted %s event without removed payload", event.Entity)
	}

	row := export.StatementRow{
		Date:        removed.Date,
		Op:          event.Op,
		Account:     removed.Account,
		Category:    removed.Category,
		Description: removed.Description,
		Amount:      core.FromCents(removed.AmountCents).StringFixed(2),
	}
	if event.Entity == amqp.EntityTransfer {
		row.Account = fmt.Sprintf("%s -> %s", removed.FromAccount, removed.ToAccount)
		row.Category = "Transfer"
	}
	return row, nil
}

func (w *ExportWorker) handleDrift(ctx context.Context, drift *amqp.DriftAlert) {
	slog.WarnContext(ctx, "Balance drift alert received, run a verification pass",
		log.FieldAccountID, drift.AccountID,
		log.FieldDeltaCents, drift.DeltaCents,
		log.FieldEntity, drift.Entity,
		log.FieldEntityID, drift.EntityID)
}
