package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func amt(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAccountValidate(t *testing.T) {
	cases := []struct {
		name    string
		account Account
		wantErr error
	}{
		{"valid", Account{Name: "Checking", OwnerID: "u1"}, nil},
		{"empty name", Account{Name: "  ", OwnerID: "u1"}, ErrEmptyName},
		{"missing owner", Account{Name: "Checking"}, ErrEmptyOwner},
		{"opening balance too precise", Account{Name: "Checking", OwnerID: "u1", OpeningBalance: amt("10.005")}, ErrInvalidAmount},
		{"negative opening balance allowed", Account{Name: "Overdrawn", OwnerID: "u1", OpeningBalance: amt("-50.00")}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.account.Validate()
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestCategoryValidate(t *testing.T) {
	cases := []struct {
		name     string
		category Category
		wantErr  error
	}{
		{"valid income", Category{Name: "Salary", Type: Income, OwnerID: "u1"}, nil},
		{"valid expense", Category{Name: "Food", Type: Expense, OwnerID: "u1"}, nil},
		{"bad type", Category{Name: "Misc", Type: "SAVINGS", OwnerID: "u1"}, ErrInvalidCategoryType},
		{"empty name", Category{Type: Income, OwnerID: "u1"}, ErrEmptyName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.category.Validate()
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{
		AccountID: "a1",
		Amount:    amt("12.34"),
		Date:      NewDate(2025, 3, 14),
		OwnerID:   "u1",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	negative := valid
	negative.Amount = amt("-12.34")
	if !errors.Is(negative.Validate(), ErrInvalidAmount) {
		t.Fatal("negative amount accepted")
	}

	noDate := valid
	noDate.Date = Date{}
	if !errors.Is(noDate.Validate(), ErrInvalidDate) {
		t.Fatal("zero date accepted")
	}

	noAccount := valid
	noAccount.AccountID = ""
	if !errors.Is(noAccount.Validate(), ErrEmptyAccount) {
		t.Fatal("missing account accepted")
	}
}

func TestTransferValidate(t *testing.T) {
	valid := Transfer{
		FromAccountID: "a1",
		ToAccountID:   "a2",
		Amount:        amt("300.00"),
		Date:          NewDate(2025, 3, 14),
		OwnerID:       "u1",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid transfer rejected: %v", err)
	}

	noTo := valid
	noTo.ToAccountID = ""
	if !errors.Is(noTo.Validate(), ErrEmptyAccount) {
		t.Fatal("missing destination accepted")
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-14")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2025-03-14" {
		t.Fatalf("round trip mismatch: %s", d)
	}
	if _, err := ParseDate("14/03/2025"); err == nil {
		t.Fatal("expected error for non-ISO date")
	}
}
