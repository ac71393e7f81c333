package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/storage"
)

// BalanceDrift reports one account whose stored balance disagrees with
// its journal. Expected is opening balance plus the recomputed effects;
// DeltaCents is stored minus expected.
type BalanceDrift struct {
	AccountID     string
	AccountName   string
	StoredCents   int64
	ExpectedCents int64
	DeltaCents    int64
}

// Verifier recomputes account balances from the journal and compares
// them with the stored values.
type Verifier struct {
	storage     *storage.SQLiteRepository
	concurrency int
}

func NewVerifier(storage *storage.SQLiteRepository, concurrency int) *Verifier {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Verifier{storage: storage, concurrency: concurrency}
}

// VerifyBalances checks every account of the owner. Accounts are checked
// concurrently; the first query error cancels the rest. An empty result
// means every stored balance matches its journal.
func (v *Verifier) VerifyBalances(ctx context.Context, ownerID string) ([]BalanceDrift, error) {
	accounts, err := v.storage.ListAccounts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	drifts := make([]*BalanceDrift, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, account := range accounts {
		i, account := i, account
		g.Go(func() error {
			effects, err := v.storage.SumAccountEffectsCents(gctx, account.ID)
			if err != nil {
				return fmt.Errorf("account %s: %w", account.ID, err)
			}

			stored := core.Cents(account.Balance)
			expected := core.Cents(account.OpeningBalance) + effects
			if stored == expected {
				return nil
			}
			drifts[i] = &BalanceDrift{
				AccountID:     account.ID,
				AccountName:   account.Name,
				StoredCents:   stored,
				ExpectedCents: expected,
				DeltaCents:    stored - expected,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []BalanceDrift
	for _, d := range drifts {
		if d == nil {
			continue
		}
		slog.WarnContext(ctx, "Balance drift detected",
			log.FieldAccountID, d.AccountID,
			log.FieldDeltaCents, d.DeltaCents)
		out = append(out, *d)
	}
	return out, nil
}
