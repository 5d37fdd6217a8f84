package ports

import (
	"context"
	"time"

	"projection/internal/core"
)

// EventKind names a transaction mutation published to the message bus.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Ports for storage and outbound adapters.
type (
	CategoryStore interface {
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		// ListCategoriesWithItems returns every category with its items, ordered by id.
		ListCategoriesWithItems(ctx context.Context) ([]core.CategoryWithItems, error)
	}

	ItemStore interface {
		CreateItem(ctx context.Context, i core.Item) (core.Item, error)
		// EnsureItem finds an item by exact name within a category or creates
		// it. Concurrent calls for one category are serialized, so a name is
		// inserted at most once. The bool reports whether a row was inserted.
		EnsureItem(ctx context.Context, i core.Item) (core.Item, bool, error)
		ListRecurringItems(ctx context.Context) ([]core.Item, error)
	}

	TransactionStore interface {
		// InsertTransactions stores all rows in one batch and returns them with ids.
		InsertTransactions(ctx context.Context, rows []core.Transaction) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
		// PatchTransaction writes only the supplied fields of patch and stamps
		// updatedAt in one statement; core.ErrNotFound when no row matched.
		PatchTransaction(ctx context.Context, id int64, patch core.TransactionPatch, updatedAt time.Time) (core.Transaction, error)
		// DeleteTransaction returns the deleted rows, empty when the id is unknown.
		DeleteTransaction(ctx context.Context, id int64) ([]core.Transaction, error)
		// ListTransactionsBetween returns rows with from <= due_date <= to ordered by (due_date, id).
		ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]core.Transaction, error)
		// LatestTransaction returns the most recent row of an item, core.ErrNotFound when none.
		LatestTransaction(ctx context.Context, itemID int64) (core.Transaction, error)
	}

	SavingsConfigStore interface {
		CreateSavingsConfig(ctx context.Context, s core.SavingsConfig) (core.SavingsConfig, error)
		ListSavingsConfigs(ctx context.Context, userID string) ([]core.SavingsConfig, error)
	}

	// Repository is the full persistence port implemented by every data backend.
	Repository interface {
		CategoryStore
		ItemStore
		TransactionStore
		SavingsConfigStore
		Ping(ctx context.Context) error
		Close() error
	}

	EventPublisher interface {
		PublishTransactionEvent(ctx context.Context, kind EventKind, ids []int64) error
	}

	// EventSubscriber follows every transaction event until ctx is done.
	EventSubscriber interface {
		SubscribeTransactionEvents(ctx context.Context, handler func(ctx context.Context, kind EventKind, ids []int64) error) error
	}

	// BoardExporter writes a shaped board to an external destination.
	BoardExporter interface {
		ExportBoard(ctx context.Context, board core.Board) error
	}
)
