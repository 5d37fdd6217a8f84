package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"projection/internal/core"
	"projection/internal/ports"
)

var _ ports.Repository = (*SQLRepository)(nil)

// SQLRepository implements ports.Repository on database/sql for SQLite and Postgres.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(context.Background(), DialectSQLite, SQLiteDSN(dbPath))
}

func NewPostgresRepository(ctx context.Context, databaseURL string) (*SQLRepository, error) {
	return open(ctx, DialectPostgres, databaseURL)
}

func open(ctx context.Context, dialect Dialect, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{
		db:      db,
		dialect: dialect,
		queries: New(db, dialect),
	}, nil
}

func (r *SQLRepository) Dialect() Dialect {
	return r.dialect
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	created, err := r.queries.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	slog.DebugContext(ctx, "Category saved", "id", created.ID, "type", created.Type)
	return created, nil
}

func (r *SQLRepository) ListCategoriesWithItems(ctx context.Context) ([]core.CategoryWithItems, error) {
	categories, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	items, err := r.queries.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return nestItems(categories, items), nil
}

func (r *SQLRepository) CreateItem(ctx context.Context, i core.Item) (core.Item, error) {
	created, err := r.queries.CreateItem(ctx, i)
	if err != nil {
		return core.Item{}, fmt.Errorf("create item: %w", err)
	}
	return created, nil
}

func (r *SQLRepository) EnsureItem(ctx context.Context, i core.Item) (core.Item, bool, error) {
	var (
		item    core.Item
		created bool
	)
	err := r.inTx(ctx, func(q *Queries) error {
		if err := q.LockCategory(ctx, i.CategoryID); err != nil {
			return fmt.Errorf("lock category: %w", err)
		}
		found, err := q.FindItemByName(ctx, i.CategoryID, i.Name)
		if err == nil {
			item = found
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find item: %w", err)
		}
		item, err = q.CreateItem(ctx, i)
		if err != nil {
			return fmt.Errorf("create item: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return core.Item{}, false, fmt.Errorf("ensure item: %w", err)
	}
	return item, created, nil
}

func (r *SQLRepository) ListRecurringItems(ctx context.Context) ([]core.Item, error) {
	items, err := r.queries.ListRecurringItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recurring items: %w", err)
	}
	return items, nil
}

func (r *SQLRepository) InsertTransactions(ctx context.Context, rows []core.Transaction) ([]core.Transaction, error) {
	inserted := make([]core.Transaction, 0, len(rows))
	err := r.inTx(ctx, func(q *Queries) error {
		for _, row := range rows {
			t, err := q.InsertTransaction(ctx, row)
			if err != nil {
				return err
			}
			inserted = append(inserted, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert transactions: %w", err)
	}
	slog.DebugContext(ctx, "Transactions saved", "count", len(inserted))
	return inserted, nil
}

func (r *SQLRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	t, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

func (r *SQLRepository) PatchTransaction(ctx context.Context, id int64, patch core.TransactionPatch, updatedAt time.Time) (core.Transaction, error) {
	updated, err := r.queries.PatchTransaction(ctx, id, patch, updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", id, err)
	}
	return updated, nil
}

func (r *SQLRepository) DeleteTransaction(ctx context.Context, id int64) ([]core.Transaction, error) {
	deleted, err := r.queries.DeleteTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete transaction %d: %w", id, err)
	}
	return deleted, nil
}

func (r *SQLRepository) ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return rows, nil
}

func (r *SQLRepository) LatestTransaction(ctx context.Context, itemID int64) (core.Transaction, error) {
	t, err := r.queries.LatestTransaction(ctx, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("latest transaction of item %d: %w", itemID, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("latest transaction of item %d: %w", itemID, err)
	}
	return t, nil
}

func (r *SQLRepository) CreateSavingsConfig(ctx context.Context, s core.SavingsConfig) (core.SavingsConfig, error) {
	created, err := r.queries.CreateSavingsConfig(ctx, s)
	if err != nil {
		return core.SavingsConfig{}, fmt.Errorf("create savings config: %w", err)
	}
	return created, nil
}

func (r *SQLRepository) ListSavingsConfigs(ctx context.Context, userID string) ([]core.SavingsConfig, error) {
	configs, err := r.queries.ListSavingsConfigs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list savings configs: %w", err)
	}
	return configs, nil
}

func (r *SQLRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nestItems(categories []core.Category, items []core.Item) []core.CategoryWithItems {
	byCategory := make(map[int64][]core.Item, len(categories))
	for _, i := range items {
		byCategory[i.CategoryID] = append(byCategory[i.CategoryID], i)
	}
	out := make([]core.CategoryWithItems, 0, len(categories))
	for _, c := range categories {
		children := byCategory[c.ID]
		if children == nil {
			children = []core.Item{}
		}
		out = append(out, core.CategoryWithItems{Category: c, Items: children})
	}
	return out
}
