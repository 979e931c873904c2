// Package sheets exports ledger events as spreadsheet rows.
package sheets

import (
	"context"
	"time"

	"finassist/internal/amqp"
)

// EventWriter appends one row per ledger event and returns a reference to
// the written row.
type EventWriter interface {
	AppendEvent(ctx context.Context, ev *amqp.LedgerEvent) (rowRef string, err error)
}

// Header names the columns written by Row.
var Header = []string{"timestamp", "type", "user_id", "transaction_id", "kind", "amount", "description", "date"}

// Row flattens an event into the exported column order. User events leave
// the transaction columns empty.
func Row(ev *amqp.LedgerEvent) []string {
	row := []string{
		ev.Timestamp.UTC().Format(time.RFC3339),
		string(ev.Type),
		ev.UserID,
		"", "", "", "", "",
	}
	if tx := ev.Transaction; tx != nil {
		row[3] = tx.ID
		row[4] = tx.Kind.String()
		row[5] = tx.Amount.String()
		row[6] = tx.Description
		row[7] = tx.Date
	}
	return row
}
