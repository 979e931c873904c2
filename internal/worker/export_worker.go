// Package worker consumes ledger events and exports them to a sheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"finassist/internal/amqp"
	"finassist/internal/log"
	"finassist/internal/sheets"
)

// EventSource is satisfied by *amqp.Client.
type EventSource interface {
	ConsumeEvents(ctx context.Context, handler amqp.EventHandler) error
}

// ExportWorker appends every consumed ledger event through an EventWriter.
type ExportWorker struct {
	writer    sheets.EventWriter
	logger    *log.StructuredLogger
	processed atomic.Int64
	failed    atomic.Int64
}

type Stats struct {
	Processed int64
	Failed    int64
}

func NewExportWorker(writer sheets.EventWriter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &ExportWorker{
		writer: writer,
		logger: log.NewStructuredLogger(logger.WithComponent(log.ComponentWorker)),
	}
}

// HandleEvent exports one event. A returned error makes the consumer
// requeue the message.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	ref, err := w.writer.AppendEvent(ctx, ev)
	if err != nil {
		w.failed.Add(1)
		w.logger.LogError(ctx, "Failed to export ledger event", err, log.OpExport,
			log.NewFields().WithUser(ev.UserID))
		return fmt.Errorf("export %s: %w", ev.Type, err)
	}
	w.processed.Add(1)
	w.logger.LogEventExported(ctx, string(ev.Type), ev.UserID, ev.TransactionID(), ref)
	return nil
}

// Run consumes from src until ctx is cancelled.
func (w *ExportWorker) Run(ctx context.Context, src EventSource) error {
	slog.InfoContext(ctx, "Export worker started")
	err := src.ConsumeEvents(ctx, w.HandleEvent)
	st := w.Stats()
	slog.InfoContext(ctx, "Export worker stopped", "processed", st.Processed, "failed", st.Failed)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *ExportWorker) Stats() Stats {
	return Stats{Processed: w.processed.Load(), Failed: w.failed.Load()}
}
