package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  CategoryType = "INCOME"
	Expense CategoryType = "EXPENSE"
)

type (
	CategoryType string

	Date struct {
		time.Time
	}

	// User is the owning identity for every other entity. Registration
	// and authentication live outside this module; a user record exists
	// so that ledger entities have an owner and so that user creation can
	// seed the default categories.
	User struct {
		ID       string
		Username string
	}

	// Account is a money container. Balance is maintained exclusively by
	// the reconciliation engine; callers never write it directly.
	Account struct {
		ID             string
		Name           string
		Balance        decimal.Decimal
		OpeningBalance decimal.Decimal
		OwnerID        string
	}

	// Category drives the sign of a transaction's effect on its account.
	Category struct {
		ID      string
		Name    string
		Type    CategoryType
		OwnerID string
	}

	// Transaction is a single income or expense entry. Amount is a
	// magnitude; the sign is derived from the category type.
	Transaction struct {
		ID          string
		AccountID   string
		CategoryID  string // empty when uncategorized
		Amount      decimal.Decimal
		Date        Date
		Description string
		OwnerID     string
	}

	// Transfer moves money between two accounts of the same owner.
	Transfer struct {
		ID            string
		FromAccountID string
		ToAccountID   string
		Amount        decimal.Decimal
		Date          Date
		Description   string
		OwnerID       string
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyName           = errors.New("empty name")
	ErrNameTooLong         = errors.New("name too long (max 100 characters)")
	ErrEmptyOwner          = errors.New("empty owner")
	ErrEmptyAccount        = errors.New("empty account reference")
	ErrInvalidCategoryType = errors.New("invalid category type")
	ErrInvalidDate         = errors.New("invalid date")
	ErrEmptyUsername       = errors.New("empty username")
)

// Valid reports whether t is one of the two known category types.
func (t CategoryType) Valid() bool {
	return t == Income || t == Expense
}

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date in ISO form (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String renders the date in ISO form (2006-01-02).
func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return ErrEmptyUsername
	}
	if len(u.Username) > 100 {
		return ErrNameTooLong
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if len(a.Name) > 100 {
		return ErrNameTooLong
	}
	if a.OwnerID == "" {
		return ErrEmptyOwner
	}
	return ValidateScale(a.OpeningBalance)
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return ErrNameTooLong
	}
	if !c.Type.Valid() {
		return ErrInvalidCategoryType
	}
	if c.OwnerID == "" {
		return ErrEmptyOwner
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.AccountID == "" {
		return ErrEmptyAccount
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.OwnerID == "" {
		return ErrEmptyOwner
	}
	return nil
}

func (t Transfer) Validate() error {
	if t.FromAccountID == "" || t.ToAccountID == "" {
		return ErrEmptyAccount
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.OwnerID == "" {
		return ErrEmptyOwner
	}
	return nil
}
