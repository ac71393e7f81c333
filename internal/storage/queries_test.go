package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedOwner(t *testing.T, repo *SQLiteRepository) core.User {
	t.Helper()
	user := core.User{ID: "u1", Username: "mario"}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func seedAccount(t *testing.T, repo *SQLiteRepository, id, ownerID string, cents int64) core.Account {
	t.Helper()
	account := core.Account{
		ID:             id,
		Name:           "Account " + id,
		Balance:        core.FromCents(cents),
		OpeningBalance: core.FromCents(cents),
		OwnerID:        ownerID,
	}
	require.NoError(t, repo.CreateAccount(context.Background(), account))
	return account
}

func TestReopenExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	user := seedOwner(t, repo)
	require.NoError(t, repo.Close())

	// Reopening a current schema must not re-run or fail migrations, and
	// the handle stays usable afterwards.
	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, user.Username, got.Username)
}

func TestAdjustBalance(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedOwner(t, repo)
	account := seedAccount(t, repo, "a1", user.ID, 100000)

	applied, err := repo.AdjustBalance(ctx, account.ID, -2550)
	require.NoError(t, err)
	require.True(t, applied)

	got, err := repo.GetAccount(ctx, account.ID, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(97450), core.Cents(got.Balance))

	// Missing accounts report not-applied instead of failing.
	applied, err = repo.AdjustBalance(ctx, "missing", 100)
	require.NoError(t, err)
	require.False(t, applied)
}

func TestGetOrCreateCategoryIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedOwner(t, repo)

	first, err := repo.GetOrCreateCategory(ctx, core.Category{
		ID: "c1", Name: "Food", Type: core.Expense, OwnerID: user.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "c1", first.ID)

	// The candidate ID is ignored when the key already exists.
	second, err := repo.GetOrCreateCategory(ctx, core.Category{
		ID: "c2", Name: "Food", Type: core.Expense, OwnerID: user.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "c1", second.ID)

	// Same name with the other type is a distinct category.
	income, err := repo.GetOrCreateCategory(ctx, core.Category{
		ID: "c3", Name: "Food", Type: core.Income, OwnerID: user.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "c3", income.ID)
}

func TestMutationsOnMissingRowsReturnNotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedOwner(t, repo)

	require.ErrorIs(t, repo.RenameAccount(ctx, "missing", user.ID, "x"), ErrNotFound)
	require.ErrorIs(t, repo.DeleteCategory(ctx, "missing", user.ID), ErrNotFound)
	require.ErrorIs(t, repo.DeleteTransaction(ctx, "missing", user.ID), ErrNotFound)
	_, err := repo.GetTransfer(ctx, "missing", user.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCategoryDeleteNullsTransactionReference(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedOwner(t, repo)
	account := seedAccount(t, repo, "a1", user.ID, 0)

	category, err := repo.GetOrCreateCategory(ctx, core.Category{
		ID: "c1", Name: "Food", Type: core.Expense, OwnerID: user.ID,
	})
	require.NoError(t, err)

	tx := core.Transaction{
		ID:         "t1",
		AccountID:  account.ID,
		CategoryID: category.ID,
		Amount:     core.FromCents(5000),
		Date:       core.NewDate(2026, 1, 1),
		OwnerID:    user.ID,
	}
	require.NoError(t, repo.CreateTransaction(ctx, tx))
	require.NoError(t, repo.DeleteCategory(ctx, category.ID, user.ID))

	got, err := repo.GetTransaction(ctx, tx.ID, user.ID)
	require.NoError(t, err)
	require.Empty(t, got.CategoryID)
}

func TestAccountDeleteCascadesEntries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedOwner(t, repo)
	a := seedAccount(t, repo, "a1", user.ID, 0)
	b := seedAccount(t, repo, "a2", user.ID, 0)

	require.NoError(t, repo.CreateTransaction(ctx, core.Transaction{
		ID: "t1", AccountID: a.ID, Amount: core.FromCents(100),
		Date: core.NewDate(2026, 1, 1), OwnerID: user.ID,
	}))
	require.NoError(t, repo.CreateTransfer(ctx, core.Transfer{
		ID: "tr1", FromAccountID: a.ID, ToAccountID: b.ID,
		Amount: core.FromCents(200), Date: core.NewDate(2026, 1, 2), OwnerID: user.ID,
	}))

	require.NoError(t, repo.DeleteAccount(ctx, a.ID, user.ID))

	_, err := repo.GetTransaction(ctx, "t1", user.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetTransfer(ctx, "tr1", user.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSumAccountEffectsCents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedOwner(t, repo)
	a := seedAccount(t, repo, "a1", user.ID, 0)
	b := seedAccount(t, repo, "a2", user.ID, 0)

	salary, err := repo.GetOrCreateCategory(ctx, core.Category{
		ID: "c1", Name: "Salary", Type: core.Income, OwnerID: user.ID,
	})
	require.NoError(t, err)
	food, err := repo.GetOrCreateCategory(ctx, core.Category{
		ID: "c2", Name: "Food", Type: core.Expense, OwnerID: user.ID,
	})
	require.NoError(t, err)

	entries := []core.Transaction{
		{ID: "t1", AccountID: a.ID, CategoryID: salary.ID, Amount: core.FromCents(200000)},
		{ID: "t2", AccountID: a.ID, CategoryID: food.ID, Amount: core.FromCents(15050)},
		{ID: "t3", AccountID: a.ID, Amount: core.FromCents(99999)}, // uncategorized, no effect
	}
	for _, tx := range entries {
		tx.Date = core.NewDate(2026, 1, 1)
		tx.OwnerID = user.ID
		require.NoError(t, repo.CreateTransaction(ctx, tx))
	}
	require.NoError(t, repo.CreateTransfer(ctx, core.Transfer{
		ID: "tr1", FromAccountID: a.ID, ToAccountID: b.ID,
		Amount: core.FromCents(40000), Date: core.NewDate(2026, 1, 2), OwnerID: user.ID,
	}))

	total, err := repo.SumAccountEffectsCents(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, int64(200000-15050-40000), total)

	total, err = repo.SumAccountEffectsCents(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(40000), total)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedOwner(t, repo)
	account := seedAccount(t, repo, "a1", user.ID, 100000)

	sentinel := context.Canceled
	err := repo.WithTx(ctx, func(q *Queries) error {
		if _, err := q.AdjustBalance(ctx, account.ID, -5000); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	got, err := repo.GetAccount(ctx, account.ID, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100000), core.Cents(got.Balance))
}
