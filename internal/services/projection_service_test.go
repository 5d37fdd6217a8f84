package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"projection/internal/cache"
	"projection/internal/core"
	"projection/internal/memory"
	"projection/internal/ports"
)

type publishedEvent struct {
	kind ports.EventKind
	ids  []int64
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) PublishTransactionEvent(_ context.Context, kind ports.EventKind, ids []int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{kind: kind, ids: ids})
	return p.err
}

var march15 = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...Option) (*ProjectionService, *fakePublisher) {
	t.Helper()
	return newTestServiceWithRepo(t, memory.NewRepository(), opts...)
}

func newTestServiceWithRepo(t *testing.T, repo ports.Repository, opts ...Option) (*ProjectionService, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	base := []Option{
		WithClock(func() time.Time { return march15 }),
		WithPublisher(pub),
		WithBoardCache(cache.NewLRUCache[[]core.BoardCategory](8, time.Hour)),
	}
	return NewProjectionService(repo, append(base, opts...)...), pub
}

// hookedRepo runs a one-shot hook inside a repository call so tests can
// interleave a second writer at a fixed point.
type hookedRepo struct {
	*memory.Repository
	mu          sync.Mutex
	beforePatch func()
	afterList   func()
}

func (r *hookedRepo) take(hook *func()) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := *hook
	*hook = nil
	return h
}

func (r *hookedRepo) PatchTransaction(ctx context.Context, id int64, patch core.TransactionPatch, updatedAt time.Time) (core.Transaction, error) {
	if h := r.take(&r.beforePatch); h != nil {
		h()
	}
	return r.Repository.PatchTransaction(ctx, id, patch, updatedAt)
}

func (r *hookedRepo) ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	rows, err := r.Repository.ListTransactionsBetween(ctx, from, to)
	if h := r.take(&r.afterList); h != nil {
		h()
	}
	return rows, err
}

func seed(t *testing.T, s *ProjectionService, typ core.CategoryType, category, item string) core.Item {
	t.Helper()
	ctx := context.Background()
	cat, err := s.CreateCategory(ctx, core.NewCategory{Name: category, Type: typ})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	it, err := s.CreateItem(ctx, core.NewItem{Name: item, CategoryID: cat.ID})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return it
}

func TestSalaryPaycheckBoard(t *testing.T) {
	s, pub := newTestService(t)
	ctx := context.Background()
	paycheck := seed(t, s, core.Income, "Salary", "Paycheck")

	rows, err := s.CreateTransaction(ctx, core.NewTransaction{
		ItemID:  paycheck.ID,
		Amount:  decimal.NewFromInt(1000000),
		DueDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Status:  core.StatusConfirmed,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if len(rows) != 1 || rows[0].DueDate.Format("2006-01-02") != "2024-03-01" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if len(pub.events) != 1 || pub.events[0].kind != ports.EventCreated || pub.events[0].ids[0] != rows[0].ID {
		t.Fatalf("expected one created event, got %+v", pub.events)
	}

	board, err := s.BoardView(ctx, 1, 8)
	if err != nil {
		t.Fatalf("board view: %v", err)
	}
	if !board.Current.Income.Equal(decimal.NewFromInt(1000000)) || board.Current.Month != "2024-03" {
		t.Fatalf("unexpected current totals %+v", board.Current)
	}
}

func TestCreateCategoryDefaultsUser(t *testing.T) {
	s, _ := newTestService(t, WithDefaultUserID("household"))
	cat, err := s.CreateCategory(context.Background(), core.NewCategory{Name: "  Home  ", Type: core.Expense})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cat.UserID != "household" || cat.Name != "Home" {
		t.Fatalf("unexpected category %+v", cat)
	}
	if !cat.CreatedAt.Equal(march15) {
		t.Fatalf("created at must come from the clock")
	}

	_, err = s.CreateCategory(context.Background(), core.NewCategory{Name: "", Type: core.Expense})
	if ve, ok := core.AsValidationError(err); !ok || ve.Field != "name" {
		t.Fatalf("expected name validation error, got %v", err)
	}
}

func TestCreateTransactionInstallments(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	laptop := seed(t, s, core.Expense, "Tech", "Laptop")

	rows, err := s.CreateTransaction(ctx, core.NewTransaction{
		ItemID:            laptop.ID,
		Amount:            decimal.NewFromInt(250),
		DueDate:           time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC),
		TotalInstallments: 3,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := []string{"2024-11", "2024-12", "2025-01"}
	for i, r := range rows {
		if core.MonthKey(r.DueDate) != want[i] || *r.InstallmentNumber != i+1 || r.Status != core.StatusEstimated {
			t.Fatalf("row %d unexpected %+v", i, r)
		}
	}

	_, err = s.CreateTransaction(ctx, core.NewTransaction{ItemID: laptop.ID, DueDate: march15, TotalInstallments: 400})
	if ve, ok := core.AsValidationError(err); !ok || ve.Field != "totalInstallments" {
		t.Fatalf("expected installments validation error, got %v", err)
	}
}

func TestCreateTransactionUnknownItem(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.CreateTransaction(context.Background(), core.NewTransaction{ItemID: 99, DueDate: march15})
	if err == nil {
		t.Fatalf("expected error for unknown item")
	}
	if _, ok := core.AsValidationError(err); ok {
		t.Fatalf("unknown item must be a storage error, got validation error")
	}
}

func TestUpdateTransaction(t *testing.T) {
	s, pub := newTestService(t)
	ctx := context.Background()
	rent := seed(t, s, core.Expense, "Home", "Rent")
	desc := "march rent"
	rows, err := s.CreateTransaction(ctx, core.NewTransaction{
		ItemID:          rent.ID,
		Amount:          decimal.NewFromInt(300),
		ProjectedAmount: decimal.NewNullDecimal(decimal.NewFromInt(320)),
		DueDate:         march15,
		Description:     &desc,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	updated, err := s.UpdateTransaction(ctx, rows[0].ID, core.TransactionPatch{
		Status:          core.Some(core.StatusPaid),
		ProjectedAmount: core.Null[decimal.Decimal](),
		DueDate:         core.Some(time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != core.StatusPaid || updated.ProjectedAmount.Valid {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.DueDate.Format("2006-01-02") != "2024-04-01" {
		t.Fatalf("due date not normalized: %s", updated.DueDate)
	}
	if updated.Description == nil || *updated.Description != "march rent" {
		t.Fatalf("omitted fields must be unchanged")
	}
	if updated.UpdatedAt == nil || !updated.UpdatedAt.Equal(march15) {
		t.Fatalf("updatedAt must be set")
	}
	if last := pub.events[len(pub.events)-1]; last.kind != ports.EventUpdated {
		t.Fatalf("expected updated event, got %+v", last)
	}

	_, err = s.UpdateTransaction(ctx, 999, core.TransactionPatch{Status: core.Some(core.StatusPaid)})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTransactionConcurrentPatchesKeepBothFields(t *testing.T) {
	repo := &hookedRepo{Repository: memory.NewRepository()}
	s, _ := newTestServiceWithRepo(t, repo)
	ctx := context.Background()
	rent := seed(t, s, core.Expense, "Home", "Rent")
	rows, err := s.CreateTransaction(ctx, core.NewTransaction{ItemID: rent.ID, Amount: decimal.NewFromInt(300), DueDate: march15})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	id := rows[0].ID

	// An amount-only writer lands while the status-only patch is in flight.
	var innerErr error
	repo.beforePatch = func() {
		_, innerErr = s.UpdateTransaction(ctx, id, core.TransactionPatch{Amount: core.Some(decimal.NewFromInt(999))})
	}
	if _, err := s.UpdateTransaction(ctx, id, core.TransactionPatch{Status: core.Some(core.StatusPaid)}); err != nil {
		t.Fatalf("status patch: %v", err)
	}
	if innerErr != nil {
		t.Fatalf("amount patch: %v", innerErr)
	}

	got, err := repo.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Amount.Equal(decimal.NewFromInt(999)) || got.Status != core.StatusPaid {
		t.Fatalf("expected both patches applied, got amount %s status %s", got.Amount, got.Status)
	}
}

func TestDeleteTransaction(t *testing.T) {
	s, pub := newTestService(t)
	ctx := context.Background()
	rent := seed(t, s, core.Expense, "Home", "Rent")
	rows, _ := s.CreateTransaction(ctx, core.NewTransaction{ItemID: rent.ID, Amount: decimal.NewFromInt(300), DueDate: march15, TotalInstallments: 2})

	deleted, err := s.DeleteTransaction(ctx, rows[0].ID)
	if err != nil || len(deleted) != 1 || deleted[0].ID != rows[0].ID {
		t.Fatalf("delete: %+v %v", deleted, err)
	}
	events := len(pub.events)

	again, err := s.DeleteTransaction(ctx, rows[0].ID)
	if err != nil || len(again) != 0 {
		t.Fatalf("second delete must return empty, got %+v %v", again, err)
	}
	if len(pub.events) != events {
		t.Fatalf("no event expected for a no-op delete")
	}

	board, _ := s.GetBoardData(ctx, 1, 8)
	if got := len(board[0].Items[0].Transactions); got != 1 {
		t.Fatalf("sibling installment must survive, got %d rows", got)
	}
}

func TestGetTransactionsJoinsItemAndCategory(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	rent := seed(t, s, core.Expense, "Home", "Rent")
	s.CreateTransaction(ctx, core.NewTransaction{ItemID: rent.ID, Amount: decimal.NewFromInt(300), DueDate: march15, TotalInstallments: 3})

	got, err := s.GetTransactions(ctx, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("get transactions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("inclusive range must return April and May, got %d", len(got))
	}
	if got[0].Item.Name != "Rent" || got[0].Item.Category.Name != "Home" {
		t.Fatalf("join missing: %+v", got[0].Item)
	}
}

func TestGetBoardDataWindowAndCache(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	rent := seed(t, s, core.Expense, "Home", "Rent")
	if _, err := s.CreateTransaction(ctx, core.NewTransaction{ItemID: rent.ID, Amount: decimal.NewFromInt(300), DueDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), TotalInstallments: 12}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	tree, err := s.GetBoardData(ctx, 1, 8)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	txs := tree[0].Items[0].Transactions
	if len(txs) != 10 || core.MonthKey(txs[0].DueDate) != "2024-02" || core.MonthKey(txs[9].DueDate) != "2024-11" {
		t.Fatalf("unexpected window rows: %d", len(txs))
	}

	if _, err := s.GetBoardData(ctx, -1, 8); err == nil {
		t.Fatalf("expected validation error for negative window")
	}

	// A mutation must invalidate the cached tree.
	if _, err := s.CreateItem(ctx, core.NewItem{Name: "Water", CategoryID: tree[0].ID}); err != nil {
		t.Fatalf("create item: %v", err)
	}
	tree, err = s.GetBoardData(ctx, 1, 8)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(tree[0].Items) != 2 {
		t.Fatalf("expected fresh tree after mutation, got %d items", len(tree[0].Items))
	}
}

func TestGetBoardDataSkipsCacheWhenInvalidatedDuringFetch(t *testing.T) {
	repo := &hookedRepo{Repository: memory.NewRepository()}
	s, _ := newTestServiceWithRepo(t, repo)
	ctx := context.Background()
	rent := seed(t, s, core.Expense, "Home", "Rent")
	rows, err := s.CreateTransaction(ctx, core.NewTransaction{ItemID: rent.ID, Amount: decimal.NewFromInt(300), DueDate: march15})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	// The delete commits after the rows were read but before the tree is cached.
	var deleteErr error
	repo.afterList = func() {
		_, deleteErr = s.DeleteTransaction(ctx, rows[0].ID)
	}
	if _, err := s.GetBoardData(ctx, 0, 0); err != nil {
		t.Fatalf("board: %v", err)
	}
	if deleteErr != nil {
		t.Fatalf("delete: %v", deleteErr)
	}

	tree, err := s.GetBoardData(ctx, 0, 0)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if n := len(tree[0].Items[0].Transactions); n != 0 {
		t.Fatalf("stale tree served from cache: %d transactions", n)
	}
}

func TestInvalidateBoardsDropsCachedTree(t *testing.T) {
	repo := memory.NewRepository()
	s, _ := newTestServiceWithRepo(t, repo)
	ctx := context.Background()
	rent := seed(t, s, core.Expense, "Home", "Rent")

	if _, err := s.GetBoardData(ctx, 0, 0); err != nil {
		t.Fatalf("board: %v", err)
	}
	// Another process writes straight to storage.
	if _, err := repo.InsertTransactions(ctx, []core.Transaction{{
		ItemID: rent.ID, Amount: decimal.NewFromInt(50), DueDate: core.StartOfMonth(march15), Status: core.StatusEstimated, CreatedAt: march15,
	}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tree, _ := s.GetBoardData(ctx, 0, 0)
	if n := len(tree[0].Items[0].Transactions); n != 0 {
		t.Fatalf("expected cached tree before invalidation, got %d transactions", n)
	}
	s.InvalidateBoards()
	tree, err := s.GetBoardData(ctx, 0, 0)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if n := len(tree[0].Items[0].Transactions); n != 1 {
		t.Fatalf("expected fresh tree after invalidation, got %d transactions", n)
	}
}

func TestEnsureItem(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	rent := seed(t, s, core.Expense, "Home", "Rent")

	found, created, err := s.EnsureItem(ctx, core.NewItem{Name: " Rent ", CategoryID: rent.CategoryID})
	if err != nil || created || found.ID != rent.ID {
		t.Fatalf("expected existing item, got %+v %v %v", found, created, err)
	}
	fresh, created, err := s.EnsureItem(ctx, core.NewItem{Name: "Water", CategoryID: rent.CategoryID})
	if err != nil || !created || !fresh.IsRecurring {
		t.Fatalf("expected new recurring item, got %+v %v %v", fresh, created, err)
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	s, pub := newTestService(t)
	pub.err = errors.New("broker down")
	rent := seed(t, s, core.Expense, "Home", "Rent")

	rows, err := s.CreateTransaction(context.Background(), core.NewTransaction{ItemID: rent.ID, DueDate: march15})
	if err != nil || len(rows) != 1 {
		t.Fatalf("publish failure must not fail the request: %v", err)
	}
}

func TestSavingsConfigs(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	if _, err := s.CreateSavingsConfig(ctx, core.NewSavingsConfig{Name: "Emergency", Percentage: decimal.RequireFromString("0.2")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateSavingsConfig(ctx, core.NewSavingsConfig{Name: "Bad", Percentage: decimal.NewFromInt(2)}); err == nil {
		t.Fatalf("expected percentage validation error")
	}
	got, err := s.ListSavingsConfigs(ctx, "")
	if err != nil || len(got) != 1 || got[0].UserID != "demo" {
		t.Fatalf("unexpected configs %+v %v", got, err)
	}
}
