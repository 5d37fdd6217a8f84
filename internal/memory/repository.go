// Package memory provides an in-process ports.Repository used for local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"projection/internal/core"
	"projection/internal/ports"
)

var _ ports.Repository = (*Repository)(nil)

type Repository struct {
	mu           sync.RWMutex
	nextID       int64
	categories   []core.Category
	items        []core.Item
	transactions map[int64]core.Transaction
	savings      []core.SavingsConfig
}

func NewRepository() *Repository {
	return &Repository{transactions: make(map[int64]core.Transaction)}
}

func (r *Repository) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *Repository) Ping(ctx context.Context) error { return ctx.Err() }

func (r *Repository) Close() error { return nil }

func (r *Repository) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.id()
	r.categories = append(r.categories, c)
	return c, nil
}

func (r *Repository) ListCategoriesWithItems(_ context.Context) ([]core.CategoryWithItems, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.CategoryWithItems, 0, len(r.categories))
	for _, c := range r.categories {
		node := core.CategoryWithItems{Category: c, Items: []core.Item{}}
		for _, i := range r.items {
			if i.CategoryID == c.ID {
				node.Items = append(node.Items, i)
			}
		}
		out = append(out, node)
	}
	return out, nil
}

func (r *Repository) CreateItem(_ context.Context, i core.Item) (core.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createItem(i)
}

func (r *Repository) createItem(i core.Item) (core.Item, error) {
	if !r.hasCategory(i.CategoryID) {
		return core.Item{}, fmt.Errorf("create item: category %d does not exist", i.CategoryID)
	}
	i.ID = r.id()
	r.items = append(r.items, i)
	return i, nil
}

func (r *Repository) EnsureItem(_ context.Context, i core.Item) (core.Item, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.CategoryID == i.CategoryID && existing.Name == i.Name {
			return existing, false, nil
		}
	}
	created, err := r.createItem(i)
	if err != nil {
		return core.Item{}, false, fmt.Errorf("ensure item: %w", err)
	}
	return created, true, nil
}

func (r *Repository) ListRecurringItems(_ context.Context) ([]core.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.Item
	for _, i := range r.items {
		if i.IsRecurring {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r *Repository) InsertTransactions(_ context.Context, rows []core.Transaction) ([]core.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		if !r.hasItem(row.ItemID) {
			return nil, fmt.Errorf("insert transactions: item %d does not exist", row.ItemID)
		}
	}
	inserted := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		row.ID = r.id()
		r.transactions[row.ID] = row
		inserted = append(inserted, row)
	}
	return inserted, nil
}

func (r *Repository) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, core.ErrNotFound)
	}
	return t, nil
}

// PatchTransaction applies the supplied fields under the write lock.
func (r *Repository) PatchTransaction(_ context.Context, id int64, patch core.TransactionPatch, updatedAt time.Time) (core.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", id, core.ErrNotFound)
	}
	next := patch.Apply(current)
	next.UpdatedAt = &updatedAt
	r.transactions[id] = next
	return next, nil
}

func (r *Repository) DeleteTransaction(_ context.Context, id int64) ([]core.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return []core.Transaction{}, nil
	}
	delete(r.transactions, id)
	return []core.Transaction{t}, nil
}

func (r *Repository) ListTransactionsBetween(_ context.Context, from, to time.Time) ([]core.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []core.Transaction{}
	for _, t := range r.transactions {
		if !t.DueDate.Before(from) && !t.DueDate.After(to) {
			out = append(out, t)
		}
	}
	sortByDueDate(out)
	return out, nil
}

func (r *Repository) LatestTransaction(_ context.Context, itemID int64) (core.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var rows []core.Transaction
	for _, t := range r.transactions {
		if t.ItemID == itemID {
			rows = append(rows, t)
		}
	}
	if len(rows) == 0 {
		return core.Transaction{}, fmt.Errorf("latest transaction of item %d: %w", itemID, core.ErrNotFound)
	}
	sortByDueDate(rows)
	return rows[len(rows)-1], nil
}

func (r *Repository) CreateSavingsConfig(_ context.Context, s core.SavingsConfig) (core.SavingsConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.id()
	r.savings = append(r.savings, s)
	return s, nil
}

func (r *Repository) ListSavingsConfigs(_ context.Context, userID string) ([]core.SavingsConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []core.SavingsConfig{}
	for _, s := range r.savings {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Repository) hasCategory(id int64) bool {
	for _, c := range r.categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (r *Repository) hasItem(id int64) bool {
	for _, i := range r.items {
		if i.ID == id {
			return true
		}
	}
	return false
}

func sortByDueDate(rows []core.Transaction) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DueDate.Equal(rows[j].DueDate) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].DueDate.Before(rows[j].DueDate)
	})
}
