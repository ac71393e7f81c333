// Package export defines the outbound statement export port and its row
// format. Implementations live in the subpackages.
package export

import "context"

// StatementRow is one exported journal line. Amount is the signed effect
// formatted with two fraction digits.
type StatementRow struct {
	Date        string
	Op          string
	Account     string
	Category    string
	Description string
	Amount      string
}

// StatementWriter appends journal lines to an export target.
type StatementWriter interface {
	Append(ctx context.Context, row StatementRow) error
}
