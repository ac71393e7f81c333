package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

var (
	salary = &core.Category{ID: "c-salary", Name: "Salary", Type: core.Income, OwnerID: "u1"}
	food   = &core.Category{ID: "c-food", Name: "Food", Type: core.Expense, OwnerID: "u1"}
)

func amt(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// sumFor collapses the adjustments targeting one account into a single
// delta, which is what the account balance ends up seeing.
func sumFor(adjs []Adjustment, accountID string) decimal.Decimal {
	total := decimal.Zero
	for _, a := range adjs {
		if a.AccountID == accountID {
			total = total.Add(a.Delta)
		}
	}
	return total
}

func TestTransactionDeltasCreate(t *testing.T) {
	cases := []struct {
		name     string
		after    TransactionSnapshot
		want     string
		wantNone bool
	}{
		{"income", TransactionSnapshot{AccountID: "a1", Amount: amt("500.00"), Category: salary}, "500.00", false},
		{"expense", TransactionSnapshot{AccountID: "a1", Amount: amt("200.00"), Category: food}, "-200.00", false},
		{"uncategorized", TransactionSnapshot{AccountID: "a1", Amount: amt("999.99")}, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adjs := TransactionDeltas(nil, &tc.after)
			if tc.wantNone {
				if len(adjs) != 0 {
					t.Fatalf("expected no adjustments, got %v", adjs)
				}
				return
			}
			if len(adjs) != 1 || adjs[0].Reversal {
				t.Fatalf("expected one non-reversal adjustment, got %v", adjs)
			}
			if !adjs[0].Delta.Equal(amt(tc.want)) {
				t.Fatalf("delta = %s, want %s", adjs[0].Delta, tc.want)
			}
		})
	}
}

func TestTransactionDeltasDelete(t *testing.T) {
	before := TransactionSnapshot{AccountID: "a1", Amount: amt("500.00"), Category: salary}
	adjs := TransactionDeltas(&before, nil)
	if len(adjs) != 1 || !adjs[0].Reversal {
		t.Fatalf("expected one reversal adjustment, got %v", adjs)
	}
	if !adjs[0].Delta.Equal(amt("-500.00")) {
		t.Fatalf("delta = %s, want -500.00", adjs[0].Delta)
	}
}

func TestTransactionDeltasCreateThenDeleteCancels(t *testing.T) {
	snap := TransactionSnapshot{AccountID: "a1", Amount: amt("123.45"), Category: food}
	created := TransactionDeltas(nil, &snap)
	deleted := TransactionDeltas(&snap, nil)
	net := sumFor(created, "a1").Add(sumFor(deleted, "a1"))
	if !net.IsZero() {
		t.Fatalf("create+delete should cancel exactly, net %s", net)
	}
}

func TestTransactionDeltasUpdateSameAccount(t *testing.T) {
	before := TransactionSnapshot{AccountID: "a1", Amount: amt("200.00"), Category: food}

	t.Run("amount change", func(t *testing.T) {
		after := before
		after.Amount = amt("300.00")
		adjs := TransactionDeltas(&before, &after)
		if len(adjs) != 1 {
			t.Fatalf("expected one adjustment, got %v", adjs)
		}
		if !adjs[0].Delta.Equal(amt("-100.00")) {
			t.Fatalf("delta = %s, want -100.00", adjs[0].Delta)
		}
	})

	t.Run("category flip", func(t *testing.T) {
		after := before
		after.Category = salary
		adjs := TransactionDeltas(&before, &after)
		// -(-200) + 200 collapses into a single +400 delta.
		if !sumFor(adjs, "a1").Equal(amt("400.00")) {
			t.Fatalf("net delta = %s, want 400.00", sumFor(adjs, "a1"))
		}
	})

	t.Run("identical update is a no-op", func(t *testing.T) {
		after := before
		if adjs := TransactionDeltas(&before, &after); len(adjs) != 0 {
			t.Fatalf("expected no adjustments, got %v", adjs)
		}
	})

	t.Run("category removed going forward", func(t *testing.T) {
		after := before
		after.Category = nil
		adjs := TransactionDeltas(&before, &after)
		if !sumFor(adjs, "a1").Equal(amt("200.00")) {
			t.Fatalf("net delta = %s, want 200.00", sumFor(adjs, "a1"))
		}
	})
}

func TestTransactionDeltasUpdateAccountMove(t *testing.T) {
	before := TransactionSnapshot{AccountID: "a1", Amount: amt("500.00"), Category: salary}
	after := TransactionSnapshot{AccountID: "a2", Amount: amt("500.00"), Category: salary}

	adjs := TransactionDeltas(&before, &after)
	if len(adjs) != 2 {
		t.Fatalf("expected two adjustments, got %v", adjs)
	}
	if !adjs[0].Reversal || adjs[0].AccountID != "a1" || !adjs[0].Delta.Equal(amt("-500.00")) {
		t.Fatalf("prior account reversal wrong: %+v", adjs[0])
	}
	if adjs[1].Reversal || adjs[1].AccountID != "a2" || !adjs[1].Delta.Equal(amt("500.00")) {
		t.Fatalf("new account application wrong: %+v", adjs[1])
	}
}

func TestTransferDeltasCreate(t *testing.T) {
	after := TransferSnapshot{FromAccountID: "a1", ToAccountID: "a2", Amount: amt("300.00")}
	adjs := TransferDeltas(nil, &after)
	if len(adjs) != 2 {
		t.Fatalf("expected two adjustments, got %v", adjs)
	}
	if !sumFor(adjs, "a1").Equal(amt("-300.00")) || !sumFor(adjs, "a2").Equal(amt("300.00")) {
		t.Fatalf("unexpected deltas: %v", adjs)
	}
}

func TestTransferDeltasDeleteRestores(t *testing.T) {
	snap := TransferSnapshot{FromAccountID: "a1", ToAccountID: "a2", Amount: amt("300.00")}
	created := TransferDeltas(nil, &snap)
	deleted := TransferDeltas(&snap, nil)
	for _, id := range []string{"a1", "a2"} {
		net := sumFor(created, id).Add(sumFor(deleted, id))
		if !net.IsZero() {
			t.Fatalf("account %s net after create+delete = %s, want 0", id, net)
		}
	}
	for _, a := range deleted {
		if !a.Reversal {
			t.Fatalf("delete deltas must be reversals: %+v", a)
		}
	}
}

func TestTransferDeltasUpdateRetargets(t *testing.T) {
	before := TransferSnapshot{FromAccountID: "a1", ToAccountID: "a2", Amount: amt("300.00")}
	after := TransferSnapshot{FromAccountID: "a3", ToAccountID: "a2", Amount: amt("100.00")}

	adjs := TransferDeltas(&before, &after)
	if !sumFor(adjs, "a1").Equal(amt("300.00")) {
		t.Fatalf("prior source should be restored by 300.00, got %s", sumFor(adjs, "a1"))
	}
	if !sumFor(adjs, "a3").Equal(amt("-100.00")) {
		t.Fatalf("new source should be charged 100.00, got %s", sumFor(adjs, "a3"))
	}
	// a2 loses the old 300 and gains the new 100.
	if !sumFor(adjs, "a2").Equal(amt("-200.00")) {
		t.Fatalf("destination net = %s, want -200.00", sumFor(adjs, "a2"))
	}
	// Reversals target prior accounts only.
	for _, a := range adjs {
		if a.Reversal && a.AccountID == "a3" {
			t.Fatalf("new account marked as reversal: %+v", a)
		}
	}
}
