package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bilancio/internal/core"
)

// ErrNotFound is returned when a row does not exist or belongs to another
// owner. Callers cannot tell the two apart, which keeps entities invisible
// across owner boundaries.
var ErrNotFound = errors.New("not found")

// DBTX is satisfied by both *sql.DB and *sql.Tx so the same queries run
// standalone or inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries is the hand-written query layer over the ledger schema. Amounts
// cross this boundary as decimals and are stored as integer cents.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// --- users ---

func (q *Queries) CreateUser(ctx context.Context, u core.User) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (id, username) VALUES (?, ?)`,
		u.ID, u.Username,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (q *Queries) GetUser(ctx context.Context, id string) (core.User, error) {
	var u core.User
	err := q.db.QueryRowContext(ctx,
		`SELECT id, username FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	var u core.User
	err := q.db.QueryRowContext(ctx,
		`SELECT id, username FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("select user by username: %w", err)
	}
	return u, nil
}

// --- accounts ---

func (q *Queries) CreateAccount(ctx context.Context, a core.Account) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, balance_cents, opening_balance_cents, owner_id)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, core.Cents(a.Balance), core.Cents(a.OpeningBalance), a.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (q *Queries) GetAccount(ctx context.Context, id, ownerID string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, balance_cents, opening_balance_cents, owner_id
		 FROM accounts WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	return scanAccount(row)
}

func (q *Queries) ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, balance_cents, opening_balance_cents, owner_id
		 FROM accounts WHERE owner_id = ? ORDER BY name`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (q *Queries) RenameAccount(ctx context.Context, id, ownerID, name string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET name = ? WHERE id = ? AND owner_id = ?`,
		name, id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("rename account: %w", err)
	}
	return requireRow(res)
}

func (q *Queries) DeleteAccount(ctx context.Context, id, ownerID string) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireRow(res)
}

// AdjustBalance adds deltaCents to the stored balance in a single atomic
// statement; there is no read-modify-write window. It reports whether an
// account row was actually updated, so callers can detect stale references.
func (q *Queries) AdjustBalance(ctx context.Context, accountID string, deltaCents int64) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ?`,
		deltaCents, accountID,
	)
	if err != nil {
		return false, fmt.Errorf("adjust balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("adjust balance rows affected: %w", err)
	}
	return n == 1, nil
}

// --- categories ---

func (q *Queries) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, type, owner_id) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, string(c.Type), c.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// GetOrCreateCategory returns the category matching (name, type, owner),
// inserting it with the candidate's ID when absent. The (name, type,
// owner) unique index makes repeated calls idempotent.
func (q *Queries) GetOrCreateCategory(ctx context.Context, candidate core.Category) (core.Category, error) {
	existing, err := q.getCategoryByKey(ctx, candidate.Name, candidate.Type, candidate.OwnerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return core.Category{}, err
	}
	if err := q.CreateCategory(ctx, candidate); err != nil {
		return core.Category{}, err
	}
	return candidate, nil
}

func (q *Queries) getCategoryByKey(ctx context.Context, name string, typ core.CategoryType, ownerID string) (core.Category, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, type, owner_id FROM categories
		 WHERE name = ? AND type = ? AND owner_id = ?`,
		name, string(typ), ownerID,
	)
	return scanCategory(row)
}

func (q *Queries) GetCategory(ctx context.Context, id, ownerID string) (core.Category, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, type, owner_id FROM categories
		 WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	return scanCategory(row)
}

func (q *Queries) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, type, owner_id FROM categories
		 WHERE owner_id = ? ORDER BY name`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (q *Queries) UpdateCategory(ctx context.Context, c core.Category) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, type = ? WHERE id = ? AND owner_id = ?`,
		c.Name, string(c.Type), c.ID, c.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return requireRow(res)
}

func (q *Queries) DeleteCategory(ctx context.Context, id, ownerID string) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return requireRow(res)
}

// --- transactions ---

func (q *Queries) CreateTransaction(ctx context.Context, t core.Transaction) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, category_id, amount_cents, entry_date, description, owner_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccountID, nullable(t.CategoryID), core.Cents(t.Amount), t.Date.String(), t.Description, t.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (q *Queries) GetTransaction(ctx context.Context, id, ownerID string) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, account_id, category_id, amount_cents, entry_date, description, owner_id
		 FROM transactions WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	return scanTransaction(row)
}

func (q *Queries) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, account_id, category_id, amount_cents, entry_date, description, owner_id
		 FROM transactions WHERE owner_id = ? ORDER BY entry_date DESC, created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var transactions []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE transactions
		 SET account_id = ?, category_id = ?, amount_cents = ?, entry_date = ?, description = ?
		 WHERE id = ? AND owner_id = ?`,
		t.AccountID, nullable(t.CategoryID), core.Cents(t.Amount), t.Date.String(), t.Description, t.ID, t.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireRow(res)
}

func (q *Queries) DeleteTransaction(ctx context.Context, id, ownerID string) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireRow(res)
}

// --- transfers ---

func (q *Queries) CreateTransfer(ctx context.Context, t core.Transfer) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO transfers (id, from_account_id, to_account_id, amount_cents, entry_date, description, owner_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FromAccountID, t.ToAccountID, core.Cents(t.Amount), t.Date.String(), t.Description, t.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (q *Queries) GetTransfer(ctx context.Context, id, ownerID string) (core.Transfer, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, from_account_id, to_account_id, amount_cents, entry_date, description, owner_id
		 FROM transfers WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	return scanTransfer(row)
}

func (q *Queries) ListTransfers(ctx context.Context, ownerID string) ([]core.Transfer, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, from_account_id, to_account_id, amount_cents, entry_date, description, owner_id
		 FROM transfers WHERE owner_id = ? ORDER BY entry_date DESC, created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transfers: %w", err)
	}
	defer rows.Close()
	return collectTransfers(rows)
}

// ListTransfersByAccount returns every transfer touching the account as
// source or destination, regardless of owner. Used by cascade deletion.
func (q *Queries) ListTransfersByAccount(ctx context.Context, accountID string) ([]core.Transfer, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, from_account_id, to_account_id, amount_cents, entry_date, description, owner_id
		 FROM transfers WHERE from_account_id = ? OR to_account_id = ?`,
		accountID, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transfers by account: %w", err)
	}
	defer rows.Close()
	return collectTransfers(rows)
}

func (q *Queries) UpdateTransfer(ctx context.Context, t core.Transfer) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE transfers
		 SET from_account_id = ?, to_account_id = ?, amount_cents = ?, entry_date = ?, description = ?
		 WHERE id = ? AND owner_id = ?`,
		t.FromAccountID, t.ToAccountID, core.Cents(t.Amount), t.Date.String(), t.Description, t.ID, t.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	return requireRow(res)
}

func (q *Queries) DeleteTransfer(ctx context.Context, id, ownerID string) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM transfers WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete transfer: %w", err)
	}
	return requireRow(res)
}

// SumAccountEffectsCents recomputes the account's journal total: signed
// transaction effects plus transfer outflows and inflows. Uncategorized
// transactions contribute nothing.
func (q *Queries) SumAccountEffectsCents(ctx context.Context, accountID string) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE((SELECT SUM(CASE c.type
		                WHEN 'INCOME' THEN t.amount_cents
		                WHEN 'EXPENSE' THEN -t.amount_cents
		                ELSE 0 END)
		             FROM transactions t
		             LEFT JOIN categories c ON c.id = t.category_id
		             WHERE t.account_id = ?), 0)
		 + COALESCE((SELECT -SUM(amount_cents) FROM transfers WHERE from_account_id = ?), 0)
		 + COALESCE((SELECT SUM(amount_cents) FROM transfers WHERE to_account_id = ?), 0)`,
		accountID, accountID, accountID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum account effects: %w", err)
	}
	return total, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a            core.Account
		balanceCents int64
		openingCents int64
	)
	err := row.Scan(&a.ID, &a.Name, &balanceCents, &openingCents, &a.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, ErrNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("scan account: %w", err)
	}
	a.Balance = core.FromCents(balanceCents)
	a.OpeningBalance = core.FromCents(openingCents)
	return a, nil
}

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c   core.Category
		typ string
	)
	err := row.Scan(&c.ID, &c.Name, &typ, &c.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("scan category: %w", err)
	}
	c.Type = core.CategoryType(typ)
	return c, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t          core.Transaction
		categoryID sql.NullString
		cents      int64
		date       string
	)
	err := row.Scan(&t.ID, &t.AccountID, &categoryID, &cents, &date, &t.Description, &t.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.CategoryID = categoryID.String
	t.Amount = core.FromCents(cents)
	t.Date, err = core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date %q: %w", date, err)
	}
	return t, nil
}

func scanTransfer(row rowScanner) (core.Transfer, error) {
	var (
		t     core.Transfer
		cents int64
		date  string
	)
	err := row.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &cents, &date, &t.Description, &t.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transfer{}, ErrNotFound
	}
	if err != nil {
		return core.Transfer{}, fmt.Errorf("scan transfer: %w", err)
	}
	t.Amount = core.FromCents(cents)
	t.Date, err = core.ParseDate(date)
	if err != nil {
		return core.Transfer{}, fmt.Errorf("parse transfer date %q: %w", date, err)
	}
	return t, nil
}

func collectTransfers(rows *sql.Rows) ([]core.Transfer, error) {
	var transfers []core.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
