// Package ledger turns entity lifecycle events into balance adjustments.
//
// The functions here are pure: they take the last-committed state of an
// entry and its new state as two immutable snapshots and return the signed
// deltas to apply to account balances. Loading snapshots and applying the
// deltas atomically is the caller's job (see internal/services).
package ledger

import (
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// Adjustment is a signed delta to apply to one account's balance.
type Adjustment struct {
	AccountID string
	Delta     decimal.Decimal

	// Reversal marks a delta that undoes a previously applied effect.
	// When a reversal targets an account that no longer exists it is
	// skipped instead of failing the whole operation; the skip is logged
	// and reported as drift.
	Reversal bool
}

// TransactionSnapshot is the slice of a transaction's state that matters
// for balance reconciliation. Category is nil when uncategorized.
type TransactionSnapshot struct {
	AccountID string
	Amount    decimal.Decimal
	Category  *core.Category
}

// TransferSnapshot is the slice of a transfer's state that matters for
// balance reconciliation.
type TransferSnapshot struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
}

// TransactionDeltas returns the balance adjustments for a transaction
// lifecycle event. A nil before means the transaction was created, a nil
// after means it was deleted; both set means an update. Zero deltas are
// omitted so no-op writes are avoided.
func TransactionDeltas(before, after *TransactionSnapshot) []Adjustment {
	switch {
	case before == nil && after == nil:
		return nil

	case before == nil:
		eff := core.Effect(after.Amount, after.Category)
		if eff.IsZero() {
			return nil
		}
		return []Adjustment{{AccountID: after.AccountID, Delta: eff}}

	case after == nil:
		eff := core.Effect(before.Amount, before.Category)
		if eff.IsZero() {
			return nil
		}
		return []Adjustment{{AccountID: before.AccountID, Delta: eff.Neg(), Reversal: true}}
	}

	oldEff := core.Effect(before.Amount, before.Category)
	newEff := core.Effect(after.Amount, after.Category)

	// When the entry moved between accounts the old effect is reversed on
	// the prior account and the new effect applied in full to the new one.
	if before.AccountID != after.AccountID {
		var adjs []Adjustment
		if !oldEff.IsZero() {
			adjs = append(adjs, Adjustment{AccountID: before.AccountID, Delta: oldEff.Neg(), Reversal: true})
		}
		if !newEff.IsZero() {
			adjs = append(adjs, Adjustment{AccountID: after.AccountID, Delta: newEff})
		}
		return adjs
	}

	delta := newEff.Sub(oldEff)
	if delta.IsZero() {
		return nil
	}
	return []Adjustment{{AccountID: after.AccountID, Delta: delta}}
}

// TransferDeltas returns the balance adjustments for a transfer lifecycle
// event. The prior effect is always reversed on the prior accounts and the
// new effect applied to the new accounts, whether or not they coincide;
// the deltas cancel out arithmetically when they do.
func TransferDeltas(before, after *TransferSnapshot) []Adjustment {
	var adjs []Adjustment
	if before != nil && !before.Amount.IsZero() {
		adjs = append(adjs,
			Adjustment{AccountID: before.FromAccountID, Delta: before.Amount, Reversal: true},
			Adjustment{AccountID: before.ToAccountID, Delta: before.Amount.Neg(), Reversal: true},
		)
	}
	if after != nil && !after.Amount.IsZero() {
		adjs = append(adjs,
			Adjustment{AccountID: after.FromAccountID, Delta: after.Amount.Neg()},
			Adjustment{AccountID: after.ToAccountID, Delta: after.Amount},
		)
	}
	return adjs
}
