package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"projection/internal/cache"
	"projection/internal/core"
	"projection/internal/log"
	"projection/internal/ports"
)

// ProjectionService runs the commands and queries of the projection board on
// top of a repository. Mutations invalidate the board cache and announce
// themselves on the event publisher when one is configured.
type ProjectionService struct {
	repo          ports.Repository
	publisher     ports.EventPublisher
	boards        cache.Cache[[]core.BoardCategory]
	cacheMu       sync.Mutex
	generation    uint64
	now           func() time.Time
	logger        *log.Logger
	defaultUserID string
}

type Option func(*ProjectionService)

func WithPublisher(p ports.EventPublisher) Option {
	return func(s *ProjectionService) { s.publisher = p }
}

func WithBoardCache(c cache.Cache[[]core.BoardCategory]) Option {
	return func(s *ProjectionService) { s.boards = c }
}

// WithClock sets the time source used for timestamps and the current month.
func WithClock(now func() time.Time) Option {
	return func(s *ProjectionService) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *ProjectionService) { s.logger = l }
}

func WithDefaultUserID(id string) Option {
	return func(s *ProjectionService) { s.defaultUserID = id }
}

func NewProjectionService(repo ports.Repository, opts ...Option) *ProjectionService {
	s := &ProjectionService{
		repo:          repo,
		now:           time.Now,
		logger:        log.Discard(),
		defaultUserID: "demo",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentProjection)
	return s
}

// Now returns the service clock in UTC.
func (s *ProjectionService) Now() time.Time {
	return s.now().UTC()
}

func (s *ProjectionService) DefaultUserID() string {
	return s.defaultUserID
}

func (s *ProjectionService) CreateCategory(ctx context.Context, in core.NewCategory) (core.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if strings.TrimSpace(in.UserID) == "" {
		in.UserID = s.defaultUserID
	}
	if err := in.Validate(); err != nil {
		return core.Category{}, err
	}

	created, err := s.repo.CreateCategory(ctx, core.Category{
		Name:      in.Name,
		Type:      in.Type,
		UserID:    in.UserID,
		CreatedAt: s.Now(),
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.invalidate()

	s.logger.InfoContext(ctx, "Category created",
		log.FieldCategoryID, created.ID,
		"type", created.Type)
	return created, nil
}

func (s *ProjectionService) GetCategories(ctx context.Context) ([]core.CategoryWithItems, error) {
	categories, err := s.repo.ListCategoriesWithItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("get categories: %w", err)
	}
	return categories, nil
}

func (s *ProjectionService) CreateItem(ctx context.Context, in core.NewItem) (core.Item, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return core.Item{}, err
	}

	created, err := s.repo.CreateItem(ctx, s.item(in))
	if err != nil {
		return core.Item{}, fmt.Errorf("create item: %w", err)
	}
	s.invalidate()

	s.logger.InfoContext(ctx, "Item created",
		log.FieldItemID, created.ID,
		log.FieldCategoryID, created.CategoryID)
	return created, nil
}

// EnsureItem returns the item with this name in the category, creating it
// when missing. The bool reports whether it was created.
func (s *ProjectionService) EnsureItem(ctx context.Context, in core.NewItem) (core.Item, bool, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return core.Item{}, false, err
	}

	item, created, err := s.repo.EnsureItem(ctx, s.item(in))
	if err != nil {
		return core.Item{}, false, fmt.Errorf("ensure item: %w", err)
	}
	if created {
		s.invalidate()
		s.logger.InfoContext(ctx, "Item created",
			log.FieldItemID, item.ID,
			log.FieldCategoryID, item.CategoryID,
			log.FieldOperation, log.OpEnsure)
	}
	return item, created, nil
}

func (s *ProjectionService) item(in core.NewItem) core.Item {
	return core.Item{
		Name:        in.Name,
		CategoryID:  in.CategoryID,
		IsRecurring: in.Recurring(),
		CreatedAt:   s.Now(),
	}
}

// CreateTransaction stores one row, or one row per installment, in a single
// batch. Rows are returned in installment order.
func (s *ProjectionService) CreateTransaction(ctx context.Context, in core.NewTransaction) ([]core.Transaction, error) {
	in = in.WithDefaults()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.Now()
	rows := in.Expand()
	for i := range rows {
		rows[i].CreatedAt = now
	}

	inserted, err := s.repo.InsertTransactions(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	s.invalidate()

	ids := transactionIDs(inserted)
	s.logger.InfoContext(ctx, "Transactions created",
		log.FieldItemID, in.ItemID,
		log.FieldRowCount, len(inserted),
		log.FieldDueMonth, core.MonthKey(rows[0].DueDate))
	s.publish(ctx, ports.EventCreated, ids)

	return inserted, nil
}

// UpdateTransaction writes only the supplied fields in one repository call.
// Unknown ids yield core.ErrNotFound.
func (s *ProjectionService) UpdateTransaction(ctx context.Context, id int64, patch core.TransactionPatch) (core.Transaction, error) {
	if id <= 0 {
		return core.Transaction{}, core.NewValidationError("id", "must be a positive id")
	}
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if patch.DueDate.Set {
		patch.DueDate.Value = core.StartOfMonth(patch.DueDate.Value)
	}

	updated, err := s.repo.PatchTransaction(ctx, id, patch, s.Now())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.invalidate()

	s.logger.InfoContext(ctx, "Transaction updated",
		log.NewFields().
			WithTransaction(updated.ID, updated.ItemID, updated.DueDate, string(updated.Status)).
			ToSlice()...)
	s.publish(ctx, ports.EventUpdated, []int64{updated.ID})

	return updated, nil
}

// DeleteTransaction removes one row; an unknown id returns an empty slice.
func (s *ProjectionService) DeleteTransaction(ctx context.Context, id int64) ([]core.Transaction, error) {
	if id <= 0 {
		return nil, core.NewValidationError("id", "must be a positive id")
	}

	deleted, err := s.repo.DeleteTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete transaction: %w", err)
	}
	if len(deleted) == 0 {
		return deleted, nil
	}
	s.invalidate()

	s.logger.InfoContext(ctx, "Transaction deleted", log.FieldTransactionID, id)
	s.publish(ctx, ports.EventDeleted, transactionIDs(deleted))

	return deleted, nil
}

// GetTransactions lists transactions due within [from, to] joined with
// their item and category.
func (s *ProjectionService) GetTransactions(ctx context.Context, from, to time.Time) ([]core.TransactionDetail, error) {
	if from.IsZero() {
		return nil, core.NewValidationError("from", "is required")
	}
	if to.IsZero() {
		return nil, core.NewValidationError("to", "is required")
	}

	categories, rows, err := s.fetch(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}

	items := make(map[int64]core.ItemWithCategory)
	for _, c := range categories {
		for _, i := range c.Items {
			items[i.ID] = core.ItemWithCategory{Item: i, Category: c.Category}
		}
	}

	out := make([]core.TransactionDetail, 0, len(rows))
	for _, t := range rows {
		out = append(out, core.TransactionDetail{Transaction: t, Item: items[t.ItemID]})
	}
	return out, nil
}

// GetBoardData returns the category, item, transaction tree for the window
// around the current month.
func (s *ProjectionService) GetBoardData(ctx context.Context, monthsBack, monthsForward int) ([]core.BoardCategory, error) {
	if err := core.ValidateWindow(monthsBack, monthsForward); err != nil {
		return nil, err
	}

	now := s.Now()
	key := fmt.Sprintf("%s:%d:%d", core.MonthKey(now), monthsBack, monthsForward)
	if s.boards != nil {
		if tree, ok := s.boards.Get(key); ok {
			return tree, nil
		}
	}
	generation := s.cacheGeneration()

	window := core.BoardWindow(now, monthsBack, monthsForward)
	categories, rows, err := s.fetch(ctx, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("get board data: %w", err)
	}
	tree := buildTree(categories, rows)

	s.storeBoard(key, tree, generation)
	s.logger.DebugContext(ctx, "Board data loaded",
		log.NewFields().WithWindow(monthsBack, monthsForward).ToSlice()...)
	return tree, nil
}

// BoardView shapes the board data into the month matrix.
func (s *ProjectionService) BoardView(ctx context.Context, monthsBack, monthsForward int) (core.Board, error) {
	tree, err := s.GetBoardData(ctx, monthsBack, monthsForward)
	if err != nil {
		return core.Board{}, err
	}
	return core.BuildBoard(tree, s.Now(), monthsBack, monthsForward), nil
}

func (s *ProjectionService) CreateSavingsConfig(ctx context.Context, in core.NewSavingsConfig) (core.SavingsConfig, error) {
	in.Name = strings.TrimSpace(in.Name)
	if strings.TrimSpace(in.UserID) == "" {
		in.UserID = s.defaultUserID
	}
	if err := in.Validate(); err != nil {
		return core.SavingsConfig{}, err
	}

	created, err := s.repo.CreateSavingsConfig(ctx, core.SavingsConfig{
		Name:       in.Name,
		Percentage: in.Percentage,
		UserID:     in.UserID,
		CreatedAt:  s.Now(),
	})
	if err != nil {
		return core.SavingsConfig{}, fmt.Errorf("create savings config: %w", err)
	}
	return created, nil
}

func (s *ProjectionService) ListSavingsConfigs(ctx context.Context, userID string) ([]core.SavingsConfig, error) {
	if strings.TrimSpace(userID) == "" {
		userID = s.defaultUserID
	}
	configs, err := s.repo.ListSavingsConfigs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list savings configs: %w", err)
	}
	return configs, nil
}

// Ready reports whether the repository answers.
func (s *ProjectionService) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// fetch loads the category tree and the ranged transactions concurrently.
func (s *ProjectionService) fetch(ctx context.Context, from, to time.Time) ([]core.CategoryWithItems, []core.Transaction, error) {
	var (
		categories []core.CategoryWithItems
		rows       []core.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = s.repo.ListCategoriesWithItems(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = s.repo.ListTransactionsBetween(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return categories, rows, nil
}

// InvalidateBoards drops every cached board tree. Writers in other
// processes reach it through the transaction event stream.
func (s *ProjectionService) InvalidateBoards() {
	s.invalidate()
}

func (s *ProjectionService) invalidate() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if s.boards != nil {
		s.boards.Clear()
	}
}

func (s *ProjectionService) cacheGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// storeBoard caches tree only when no invalidation happened since the fetch
// started; otherwise the tree may predate the write.
func (s *ProjectionService) storeBoard(key string, tree []core.BoardCategory, generation uint64) {
	if s.boards == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != generation {
		return
	}
	s.boards.Set(key, tree)
}

// publish never fails the caller: the data is already stored.
func (s *ProjectionService) publish(ctx context.Context, kind ports.EventKind, ids []int64) {
	if s.publisher == nil || len(ids) == 0 {
		return
	}
	if err := s.publisher.PublishTransactionEvent(ctx, kind, ids); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			log.FieldEventKind, kind,
			log.FieldError, err)
	}
}

func buildTree(categories []core.CategoryWithItems, rows []core.Transaction) []core.BoardCategory {
	byItem := make(map[int64][]core.Transaction)
	for _, t := range rows {
		byItem[t.ItemID] = append(byItem[t.ItemID], t)
	}

	tree := make([]core.BoardCategory, 0, len(categories))
	for _, c := range categories {
		node := core.BoardCategory{Category: c.Category, Items: make([]core.ItemWithTransactions, 0, len(c.Items))}
		for _, i := range c.Items {
			txs := byItem[i.ID]
			if txs == nil {
				txs = []core.Transaction{}
			}
			node.Items = append(node.Items, core.ItemWithTransactions{Item: i, Transactions: txs})
		}
		tree = append(tree, node)
	}
	return tree
}

func transactionIDs(rows []core.Transaction) []int64 {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}
