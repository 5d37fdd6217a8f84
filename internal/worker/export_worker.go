package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"projection/internal/amqp"
	"projection/internal/core"
	"projection/internal/log"
	"projection/internal/ports"
)

// BoardSource produces the board matrix for a window around the current month.
type BoardSource interface {
	BoardView(ctx context.Context, monthsBack, monthsForward int) (core.Board, error)
}

// ExportWorker rewrites the exported board whenever transactions change.
// Events only trigger a fresh read; their ids are logged, never trusted as data.
type ExportWorker struct {
	source        BoardSource
	exporter      ports.BoardExporter
	monthsBack    int
	monthsForward int
	logger        *log.Logger

	mu         sync.Mutex
	lastExport time.Time
}

func NewExportWorker(source BoardSource, exporter ports.BoardExporter, monthsBack, monthsForward int, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		source:        source,
		exporter:      exporter,
		monthsBack:    monthsBack,
		monthsForward: monthsForward,
		logger:        logger.WithComponent(log.ComponentWorker),
	}
}

// HandleTransactionEvent processes a single transaction event from AMQP.
func (w *ExportWorker) HandleTransactionEvent(ctx context.Context, event *amqp.TransactionEvent) error {
	if event == nil {
		return errors.New("nil transaction event")
	}
	w.logger.InfoContext(ctx, "Processing transaction event",
		log.FieldEventKind, event.Kind,
		log.FieldRowCount, len(event.TransactionIDs),
		"timestamp", event.Timestamp)

	if err := w.Export(ctx); err != nil {
		return fmt.Errorf("handle %s event: %w", event.Kind, err)
	}
	return nil
}

// Export reads the current board and hands it to the exporter. Calls are
// serialized so two events never write the sheet concurrently.
func (w *ExportWorker) Export(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	board, err := w.source.BoardView(ctx, w.monthsBack, w.monthsForward)
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	if err := w.exporter.ExportBoard(ctx, board); err != nil {
		return fmt.Errorf("export board: %w", err)
	}
	w.lastExport = time.Now()

	w.logger.InfoContext(ctx, "Board exported",
		log.FieldOperation, log.OpExport,
		log.FieldDueMonth, board.Current.Month,
		"months", len(board.Months))
	return nil
}

// LastExport returns the time of the last successful export.
func (w *ExportWorker) LastExport() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastExport
}

// RunPeriodic exports on every tick until ctx is done. It is the backup
// mechanism for events lost while the worker or the broker was down.
func (w *ExportWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Export(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic export failed", log.FieldError, err)
			}
		}
	}
}
