package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"projection/internal/core"
)

func TestProjectRecurring(t *testing.T) {
	s, pub := newTestService(t)
	ctx := context.Background()

	rent := seed(t, s, core.Expense, "Home", "Rent")
	seed(t, s, core.Expense, "Misc", "Never used")
	if _, err := s.CreateTransaction(ctx, core.NewTransaction{
		ItemID:  rent.ID,
		Amount:  decimal.NewFromInt(300),
		DueDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Status:  core.StatusPaid,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	events := len(pub.events)

	p := NewRecurringProcessor(s, 3)
	created, err := p.ProjectRecurring(ctx)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	// Current month is March 2024, horizon ends June; April already exists.
	if created != 2 {
		t.Fatalf("expected May and June projections, got %d", created)
	}
	if len(pub.events) != events+1 {
		t.Fatalf("expected a created event for the projections")
	}

	tree, _ := s.GetBoardData(ctx, 0, 3)
	var months []string
	for _, tx := range tree[0].Items[0].Transactions {
		months = append(months, core.MonthKey(tx.DueDate))
		if core.MonthKey(tx.DueDate) != "2024-04" {
			if tx.Status != core.StatusEstimated || !tx.Amount.Equal(decimal.NewFromInt(300)) {
				t.Fatalf("unexpected projection %+v", tx)
			}
		}
	}
	if len(months) != 3 || months[1] != "2024-05" || months[2] != "2024-06" {
		t.Fatalf("unexpected months %v", months)
	}
	if len(tree[1].Items[0].Transactions) != 0 {
		t.Fatalf("items without transactions must not be projected")
	}

	again, err := p.ProjectRecurring(ctx)
	if err != nil || again != 0 {
		t.Fatalf("second run must be a no-op, got %d %v", again, err)
	}
}

func TestProjectRecurringSkipsInstallmentsAndOneOffs(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	laptop := seed(t, s, core.Expense, "Tech", "Laptop")
	s.CreateTransaction(ctx, core.NewTransaction{ItemID: laptop.ID, Amount: decimal.NewFromInt(100), DueDate: march15, TotalInstallments: 2})

	no := false
	cat, _ := s.CreateCategory(ctx, core.NewCategory{Name: "Gifts", Type: core.Expense})
	gift, _ := s.CreateItem(ctx, core.NewItem{Name: "Birthday", CategoryID: cat.ID, IsRecurring: &no})
	s.CreateTransaction(ctx, core.NewTransaction{ItemID: gift.ID, Amount: decimal.NewFromInt(50), DueDate: march15})

	created, err := NewRecurringProcessor(s, 6).ProjectRecurring(ctx)
	if err != nil || created != 0 {
		t.Fatalf("expected nothing projected, got %d %v", created, err)
	}
}
