package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"projection/internal/core"
)

var created = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedItem(t *testing.T, repo *SQLRepository, typ core.CategoryType, name string) (core.Category, core.Item) {
	t.Helper()
	ctx := context.Background()
	cat, err := repo.CreateCategory(ctx, core.Category{Name: name, Type: typ, UserID: "demo", CreatedAt: created})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	item, err := repo.CreateItem(ctx, core.Item{Name: name + " item", CategoryID: cat.ID, IsRecurring: true, CreatedAt: created})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return cat, item
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM b WHERE c = ? AND d BETWEEN ? AND ?"
	if got := DialectSQLite.Rebind(q); got != q {
		t.Fatalf("sqlite must keep ?, got %s", got)
	}
	want := "SELECT a FROM b WHERE c = $1 AND d BETWEEN $2 AND $3"
	if got := DialectPostgres.Rebind(q); got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestCategoriesWithItems(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	salary, paycheck := seedItem(t, repo, core.Income, "Salary")
	home, err := repo.CreateCategory(ctx, core.Category{Name: "Home", Type: core.Expense, UserID: "demo", CreatedAt: created})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	got, err := repo.ListCategoriesWithItems(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != salary.ID || got[1].ID != home.ID {
		t.Fatalf("unexpected categories %+v", got)
	}
	if len(got[0].Items) != 1 || got[0].Items[0].ID != paycheck.ID || !got[0].Items[0].IsRecurring {
		t.Fatalf("unexpected items %+v", got[0].Items)
	}
	if got[1].Items == nil || len(got[1].Items) != 0 {
		t.Fatalf("category without items must carry an empty list")
	}
	if !got[0].CreatedAt.Equal(created) {
		t.Fatalf("created at not round-tripped: %s", got[0].CreatedAt)
	}
}

func TestItemForeignKeyEnforced(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.CreateItem(context.Background(), core.Item{Name: "orphan", CategoryID: 999, CreatedAt: created})
	if err == nil {
		t.Fatalf("expected foreign key violation")
	}
}

func TestEnsureItem(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cat, existing := seedItem(t, repo, core.Expense, "Home")

	found, isNew, err := repo.EnsureItem(ctx, core.Item{Name: existing.Name, CategoryID: cat.ID, CreatedAt: created})
	if err != nil {
		t.Fatalf("ensure existing: %v", err)
	}
	if isNew || found.ID != existing.ID {
		t.Fatalf("expected existing item %d, got %d (new=%v)", existing.ID, found.ID, isNew)
	}

	fresh, isNew, err := repo.EnsureItem(ctx, core.Item{Name: "Water", CategoryID: cat.ID, IsRecurring: true, CreatedAt: created})
	if err != nil {
		t.Fatalf("ensure new: %v", err)
	}
	if !isNew || fresh.ID == existing.ID {
		t.Fatalf("expected a new item, got %+v", fresh)
	}
}

func TestEnsureItemConcurrentCallersShareOneRow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cat, _ := seedItem(t, repo, core.Income, "Salary")

	const callers = 8
	ids := make([]int64, callers)
	inserted := make([]bool, callers)
	g, gctx := errgroup.WithContext(ctx)
	for n := 0; n < callers; n++ {
		g.Go(func() error {
			item, isNew, err := repo.EnsureItem(gctx, core.Item{Name: "Paycheck", CategoryID: cat.ID, IsRecurring: true, CreatedAt: created})
			ids[n], inserted[n] = item.ID, isNew
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	creators := 0
	for n := range ids {
		if ids[n] != ids[0] {
			t.Fatalf("caller %d got item %d, caller 0 got %d", n, ids[n], ids[0])
		}
		if inserted[n] {
			creators++
		}
	}
	if creators != 1 {
		t.Fatalf("expected exactly one insert, got %d", creators)
	}

	tree, err := repo.ListCategoriesWithItems(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, c := range tree {
		if c.ID != cat.ID {
			continue
		}
		matches := 0
		for _, it := range c.Items {
			if it.Name == "Paycheck" {
				matches++
			}
		}
		if matches != 1 {
			t.Fatalf("expected one Paycheck row, got %d", matches)
		}
	}
}

func TestTransactionLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, item := seedItem(t, repo, core.Expense, "Tech")

	desc := "laptop"
	rows := core.NewTransaction{
		ItemID:            item.ID,
		Amount:            decimal.RequireFromString("250.5"),
		ProjectedAmount:   decimal.NewNullDecimal(decimal.NewFromInt(300)),
		DueDate:           time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC),
		TotalInstallments: 3,
		Description:       &desc,
	}.Expand()
	for i := range rows {
		rows[i].CreatedAt = created
	}

	inserted, err := repo.InsertTransactions(ctx, rows)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(inserted) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(inserted))
	}
	for i, row := range inserted {
		if row.ID == 0 || *row.InstallmentNumber != i+1 || *row.TotalInstallments != 3 {
			t.Fatalf("row %d: unexpected %+v", i, row)
		}
		if !row.Amount.Equal(decimal.RequireFromString("250.5")) || !row.ProjectedAmount.Valid {
			t.Fatalf("row %d: amounts not round-tripped", i)
		}
		if row.Status != core.StatusEstimated || row.UpdatedAt != nil {
			t.Fatalf("row %d: unexpected status/updatedAt", i)
		}
	}

	window, err := repo.ListTransactionsBetween(ctx,
		time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(window) != 2 || window[0].ID != inserted[1].ID || window[1].ID != inserted[2].ID {
		t.Fatalf("inclusive window returned %+v", window)
	}

	latest, err := repo.LatestTransaction(ctx, item.ID)
	if err != nil || latest.ID != inserted[2].ID {
		t.Fatalf("latest: got %+v, %v", latest, err)
	}

	now := created.Add(time.Hour)
	updated, err := repo.PatchTransaction(ctx, inserted[0].ID, core.TransactionPatch{
		Status:          core.Some(core.StatusPaid),
		ProjectedAmount: core.Null[decimal.Decimal](),
		Description:     core.Null[string](),
	}, now)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != core.StatusPaid || updated.ProjectedAmount.Valid || updated.Description != nil {
		t.Fatalf("update not applied: %+v", updated)
	}
	if !updated.Amount.Equal(decimal.RequireFromString("250.5")) || !updated.DueDate.Equal(inserted[0].DueDate) {
		t.Fatalf("fields outside the patch changed: %+v", updated)
	}
	if updated.UpdatedAt == nil || !updated.UpdatedAt.Equal(now) {
		t.Fatalf("updatedAt not stored")
	}

	deleted, err := repo.DeleteTransaction(ctx, inserted[1].ID)
	if err != nil || len(deleted) != 1 || deleted[0].ID != inserted[1].ID {
		t.Fatalf("delete: got %+v, %v", deleted, err)
	}
	again, err := repo.DeleteTransaction(ctx, inserted[1].ID)
	if err != nil || len(again) != 0 {
		t.Fatalf("deleting an unknown id must return empty, got %+v, %v", again, err)
	}
}

func TestTransactionNotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetTransaction(ctx, 42); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.PatchTransaction(ctx, 42, core.TransactionPatch{Status: core.Some(core.StatusPaid)}, created); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.LatestTransaction(ctx, 42); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecurringItems(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cat, recurring := seedItem(t, repo, core.Expense, "Home")
	if _, err := repo.CreateItem(ctx, core.Item{Name: "One-off", CategoryID: cat.ID, IsRecurring: false, CreatedAt: created}); err != nil {
		t.Fatalf("create item: %v", err)
	}

	items, err := repo.ListRecurringItems(ctx)
	if err != nil {
		t.Fatalf("list recurring: %v", err)
	}
	if len(items) != 1 || items[0].ID != recurring.ID {
		t.Fatalf("unexpected recurring items %+v", items)
	}
}

func TestSavingsConfigs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cfg, err := repo.CreateSavingsConfig(ctx, core.SavingsConfig{Name: "Emergency", Percentage: decimal.RequireFromString("0.2"), UserID: "demo", CreatedAt: created})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateSavingsConfig(ctx, core.SavingsConfig{Name: "Other", Percentage: decimal.RequireFromString("0.1"), UserID: "someone", CreatedAt: created}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.ListSavingsConfigs(ctx, "demo")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != cfg.ID || !got[0].Percentage.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("unexpected configs %+v", got)
	}
}

func TestPostgresRepository(t *testing.T) {
	url := os.Getenv("PROJECTION_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PROJECTION_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	repo, err := NewPostgresRepository(ctx, url)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer repo.Close()

	cat, err := repo.CreateCategory(ctx, core.Category{Name: "Salary", Type: core.Income, UserID: "demo", CreatedAt: created})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	item, _, err := repo.EnsureItem(ctx, core.Item{Name: "Paycheck", CategoryID: cat.ID, IsRecurring: true, CreatedAt: created})
	if err != nil {
		t.Fatalf("ensure item: %v", err)
	}
	rows := core.NewTransaction{ItemID: item.ID, Amount: decimal.NewFromInt(1000000), DueDate: created}.Expand()
	rows[0].CreatedAt = created
	inserted, err := repo.InsertTransactions(ctx, rows)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.DeleteTransaction(ctx, inserted[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
