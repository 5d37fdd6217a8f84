package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"projection/internal/core"
)

func TestRepositoryTransactions(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	cat, _ := repo.CreateCategory(ctx, core.Category{Name: "Home", Type: core.Expense, UserID: "demo"})
	item, err := repo.CreateItem(ctx, core.Item{Name: "Rent", CategoryID: cat.ID, IsRecurring: true})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	march := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows, err := repo.InsertTransactions(ctx, []core.Transaction{
		{ItemID: item.ID, Amount: decimal.NewFromInt(300), DueDate: march.AddDate(0, 1, 0), Status: core.StatusEstimated},
		{ItemID: item.ID, Amount: decimal.NewFromInt(300), DueDate: march, Status: core.StatusEstimated},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	listed, _ := repo.ListTransactionsBetween(ctx, march, march.AddDate(0, 1, 0))
	if len(listed) != 2 || listed[0].ID != rows[1].ID {
		t.Fatalf("expected rows ordered by due date, got %+v", listed)
	}

	latest, err := repo.LatestTransaction(ctx, item.ID)
	if err != nil || latest.ID != rows[0].ID {
		t.Fatalf("latest: %+v %v", latest, err)
	}

	patched, err := repo.PatchTransaction(ctx, rows[1].ID, core.TransactionPatch{Status: core.Some(core.StatusPaid)}, march)
	if err != nil || patched.Status != core.StatusPaid || !patched.Amount.Equal(decimal.NewFromInt(300)) || patched.UpdatedAt == nil {
		t.Fatalf("patch: %+v %v", patched, err)
	}
	if _, err := repo.PatchTransaction(ctx, 999, core.TransactionPatch{Status: core.Some(core.StatusPaid)}, march); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	deleted, _ := repo.DeleteTransaction(ctx, 999)
	if len(deleted) != 0 {
		t.Fatalf("expected empty delete result")
	}
}

func TestRepositoryRejectsUnknownParents(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	if _, err := repo.CreateItem(ctx, core.Item{Name: "x", CategoryID: 5}); err == nil {
		t.Fatalf("expected error for unknown category")
	}
	if _, err := repo.InsertTransactions(ctx, []core.Transaction{{ItemID: 5}}); err == nil {
		t.Fatalf("expected error for unknown item")
	}
}

func TestRepositoryEnsureItem(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	cat, _ := repo.CreateCategory(ctx, core.Category{Name: "Salary", Type: core.Income, UserID: "demo"})

	first, created, err := repo.EnsureItem(ctx, core.Item{Name: "Paycheck", CategoryID: cat.ID})
	if err != nil || !created {
		t.Fatalf("expected creation, got %v %v", created, err)
	}
	second, created, err := repo.EnsureItem(ctx, core.Item{Name: "Paycheck", CategoryID: cat.ID})
	if err != nil || created || second.ID != first.ID {
		t.Fatalf("expected existing item, got %+v %v %v", second, created, err)
	}
}
