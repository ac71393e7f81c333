package core

// DefaultCategory is one entry of the fixed set seeded for every new user.
type DefaultCategory struct {
	Name string
	Type CategoryType
}

// DefaultCategories is the category set created once when a user is
// registered. The four balance entries at the end are anchors for opening
// balances and manual corrections.
var DefaultCategories = []DefaultCategory{
	{"Salary", Income},
	{"Investments", Income},
	{"Gifts", Income},
	{"Deposits", Income},

	{"Food", Expense},
	{"Housing", Expense},
	{"Utilities", Expense},
	{"Transportation", Expense},
	{"Health", Expense},
	{"Entertainment", Expense},
	{"Education", Expense},
	{"Debt Payments", Expense},

	{"Initial Balance (+)", Income},
	{"Initial Balance (-)", Expense},
	{"Balance Adjustment (+)", Income},
	{"Balance Adjustment (-)", Expense},
}
