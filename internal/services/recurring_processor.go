package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"projection/internal/core"
	"projection/internal/log"
	"projection/internal/ports"
)

// RecurringProcessor fills the months ahead of recurring items with
// ESTIMATED copies of their most recent transaction.
type RecurringProcessor struct {
	service       *ProjectionService
	horizonMonths int
	logger        *log.Logger
}

func NewRecurringProcessor(service *ProjectionService, horizonMonths int) *RecurringProcessor {
	return &RecurringProcessor{
		service:       service,
		horizonMonths: horizonMonths,
		logger:        service.logger.WithComponent(log.ComponentRecurring),
	}
}

// ProjectRecurring creates the missing projections and returns how many rows
// were inserted. Items without any transaction and items whose latest row
// belongs to an installment series are skipped. Only months after the latest
// transaction and within the horizon are filled, so running twice is a no-op.
func (p *RecurringProcessor) ProjectRecurring(ctx context.Context) (int, error) {
	if p.service == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	repo := p.service.repo

	items, err := repo.ListRecurringItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recurring items: %w", err)
	}

	now := p.service.Now()
	current := core.StartOfMonth(now)
	last := core.AddMonths(current, p.horizonMonths)

	p.logger.InfoContext(ctx, "Projecting recurring items",
		"total_recurring", len(items),
		log.FieldDueMonth, core.MonthKey(current),
		"horizon_months", p.horizonMonths)

	var (
		created int
		ids     []int64
	)
	for _, item := range items {
		latest, err := repo.LatestTransaction(ctx, item.ID)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to load latest transaction",
				log.FieldItemID, item.ID,
				log.FieldError, err)
			continue
		}
		if latest.IsInstallment() {
			continue
		}

		rows := projectionRows(latest, current, last, now)
		if len(rows) == 0 {
			continue
		}

		inserted, err := repo.InsertTransactions(ctx, rows)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to insert projections",
				log.FieldItemID, item.ID,
				log.FieldError, err)
			continue
		}

		created += len(inserted)
		ids = append(ids, transactionIDs(inserted)...)
		p.logger.InfoContext(ctx, "Projected recurring item",
			log.FieldItemID, item.ID,
			log.FieldRowCount, len(inserted))
	}

	if created > 0 {
		p.service.invalidate()
		p.service.publish(ctx, ports.EventCreated, ids)
	}

	p.logger.InfoContext(ctx, "Recurring projection complete",
		"created", created,
		"total_checked", len(items))
	return created, nil
}

func projectionRows(latest core.Transaction, current, last, now time.Time) []core.Transaction {
	start := core.AddMonths(latest.DueDate, 1)
	if start.Before(current) {
		start = current
	}

	var rows []core.Transaction
	one := 1
	for m := start; !m.After(last); m = core.AddMonths(m, 1) {
		number, total := one, one
		rows = append(rows, core.Transaction{
			ItemID:            latest.ItemID,
			Amount:            latest.Amount,
			DueDate:           m,
			Status:            core.StatusEstimated,
			IsInvestment:      latest.IsInvestment,
			InstallmentNumber: &number,
			TotalInstallments: &total,
			CreatedAt:         now,
		})
	}
	return rows
}
