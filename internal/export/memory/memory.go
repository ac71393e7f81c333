// Package memory is an in-process statement writer used in tests and as a
// fallback when no spreadsheet is configured.
package memory

import (
	"context"
	"sync"

	"bilancio/internal/export"
)

type Writer struct {
	mu   sync.Mutex
	rows []export.StatementRow
}

var _ export.StatementWriter = (*Writer)(nil)

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Append(_ context.Context, row export.StatementRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, row)
	return nil
}

// Rows returns a copy of everything appended so far.
func (w *Writer) Rows() []export.StatementRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]export.StatementRow, len(w.rows))
	copy(out, w.rows)
	return out
}
