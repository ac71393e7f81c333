package core

import "github.com/shopspring/decimal"

// Effect returns the signed impact a transaction has on its account
// balance: positive for income categories, negative for expense
// categories, zero when the transaction is uncategorized.
//
// Effect is pure and total: it never fails and never touches storage.
func Effect(amount decimal.Decimal, category *Category) decimal.Decimal {
	if category == nil {
		return decimal.Zero
	}
	if category.Type == Income {
		return amount
	}
	return amount.Neg()
}
