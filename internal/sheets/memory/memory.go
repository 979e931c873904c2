// Package memory is an EventWriter that keeps rows in process memory. The
// export worker falls back to it when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"finassist/internal/amqp"
	"finassist/internal/sheets"
)

type Writer struct {
	mu   sync.Mutex
	rows [][]string
}

var _ sheets.EventWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{}
}

// AppendEvent stores the row and returns a synthetic row reference.
func (w *Writer) AppendEvent(_ context.Context, ev *amqp.LedgerEvent) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, sheets.Row(ev))
	return fmt.Sprintf("mem:%d", len(w.rows)), nil
}

// Rows returns a copy of everything written so far.
func (w *Writer) Rows() [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]string, len(w.rows))
	for i, r := range w.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
