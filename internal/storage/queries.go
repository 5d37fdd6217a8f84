package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"projection/internal/core"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db      DBTX
	dialect Dialect
}

func New(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}

type scanner interface {
	Scan(dest ...any) error
}

const categoryColumns = `id, name, type, user_id, created_at`

const createCategory = `INSERT INTO category (name, type, user_id, created_at)
VALUES (?, ?, ?, ?)
RETURNING ` + categoryColumns

func (q *Queries) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.Rebind(createCategory),
		c.Name, string(c.Type), c.UserID, toUnix(c.CreatedAt))
	return scanCategory(row)
}

const listCategories = `SELECT ` + categoryColumns + ` FROM category ORDER BY id`

func (q *Queries) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const itemColumns = `id, name, category_id, is_recurring, created_at`

const createItem = `INSERT INTO item (name, category_id, is_recurring, created_at)
VALUES (?, ?, ?, ?)
RETURNING ` + itemColumns

func (q *Queries) CreateItem(ctx context.Context, i core.Item) (core.Item, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.Rebind(createItem),
		i.Name, i.CategoryID, i.IsRecurring, toUnix(i.CreatedAt))
	return scanItem(row)
}

const findItemByName = `SELECT ` + itemColumns + ` FROM item
WHERE category_id = ? AND name = ?
ORDER BY id
LIMIT 1`

const lockCategory = `SELECT id FROM category WHERE id = ? FOR UPDATE`

// LockCategory holds the category row until the transaction ends. SQLite
// has no row locks; its IMMEDIATE transactions already serialize writers.
func (q *Queries) LockCategory(ctx context.Context, id int64) error {
	if q.dialect != DialectPostgres {
		return nil
	}
	var locked int64
	err := q.db.QueryRowContext(ctx, q.dialect.Rebind(lockCategory), id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		// The insert reports the missing parent.
		return nil
	}
	return err
}

func (q *Queries) FindItemByName(ctx context.Context, categoryID int64, name string) (core.Item, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.Rebind(findItemByName), categoryID, name)
	return scanItem(row)
}

const listItems = `SELECT ` + itemColumns + ` FROM item ORDER BY id`

func (q *Queries) ListItems(ctx context.Context) ([]core.Item, error) {
	return q.queryItems(ctx, listItems)
}

const listRecurringItems = `SELECT ` + itemColumns + ` FROM item WHERE is_recurring = ? ORDER BY id`

func (q *Queries) ListRecurringItems(ctx context.Context) ([]core.Item, error) {
	return q.queryItems(ctx, q.dialect.Rebind(listRecurringItems), true)
}

func (q *Queries) queryItems(ctx context.Context, query string, args ...any) ([]core.Item, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const transactionColumns = `id, item_id, amount, projected_amount, due_date, status,
installment_number, total_installments, description, is_investment, created_at, updated_at`

const insertTransaction = `INSERT INTO "transaction" (item_id, amount, projected_amount, due_date, status,
installment_number, total_installments, description, is_investment, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.Rebind(insertTransaction),
		t.ItemID,
		t.Amount.InexactFloat64(),
		nullDecimal(t.ProjectedAmount),
		toUnix(t.DueDate),
		string(t.Status),
		nullInt(t.InstallmentNumber),
		nullInt(t.TotalInstallments),
		nullString(t.Description),
		t.IsInvestment,
		toUnix(t.CreatedAt),
	)
	return scanTransaction(row)
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM "transaction" WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, q.dialect.Rebind(getTransaction), id))
}

// PatchTransaction sets only the columns supplied by p. The due date must
// already be normalized.
func (q *Queries) PatchTransaction(ctx context.Context, id int64, p core.TransactionPatch, updatedAt time.Time) (core.Transaction, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if p.Amount.Set {
		set("amount", p.Amount.Value.InexactFloat64())
	}
	if p.ProjectedAmount.Set {
		if p.ProjectedAmount.Null {
			set("projected_amount", nil)
		} else {
			set("projected_amount", p.ProjectedAmount.Value.InexactFloat64())
		}
	}
	if p.Status.Set {
		set("status", string(p.Status.Value))
	}
	if p.DueDate.Set {
		set("due_date", toUnix(p.DueDate.Value))
	}
	if p.Description.Set {
		if p.Description.Null {
			set("description", nil)
		} else {
			set("description", p.Description.Value)
		}
	}
	if p.IsInvestment.Set {
		set("is_investment", p.IsInvestment.Value)
	}
	set("updated_at", toUnix(updatedAt))
	args = append(args, id)

	query := `UPDATE "transaction" SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? RETURNING ` + transactionColumns
	return scanTransaction(q.db.QueryRowContext(ctx, q.dialect.Rebind(query), args...))
}

const deleteTransaction = `DELETE FROM "transaction" WHERE id = ? RETURNING ` + transactionColumns

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) ([]core.Transaction, error) {
	return q.queryTransactions(ctx, q.dialect.Rebind(deleteTransaction), id)
}

const listTransactionsBetween = `SELECT ` + transactionColumns + ` FROM "transaction"
WHERE due_date BETWEEN ? AND ?
ORDER BY due_date, id`

func (q *Queries) ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	return q.queryTransactions(ctx, q.dialect.Rebind(listTransactionsBetween), toUnix(from), toUnix(to))
}

const latestTransaction = `SELECT ` + transactionColumns + ` FROM "transaction"
WHERE item_id = ?
ORDER BY due_date DESC, id DESC
LIMIT 1`

func (q *Queries) LatestTransaction(ctx context.Context, itemID int64) (core.Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, q.dialect.Rebind(latestTransaction), itemID))
}

func (q *Queries) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const savingsConfigColumns = `id, name, percentage, user_id, created_at`

const createSavingsConfig = `INSERT INTO savings_config (name, percentage, user_id, created_at)
VALUES (?, ?, ?, ?)
RETURNING ` + savingsConfigColumns

func (q *Queries) CreateSavingsConfig(ctx context.Context, s core.SavingsConfig) (core.SavingsConfig, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.Rebind(createSavingsConfig),
		s.Name, s.Percentage.InexactFloat64(), s.UserID, toUnix(s.CreatedAt))
	return scanSavingsConfig(row)
}

const listSavingsConfigs = `SELECT ` + savingsConfigColumns + ` FROM savings_config WHERE user_id = ? ORDER BY id`

func (q *Queries) ListSavingsConfigs(ctx context.Context, userID string) ([]core.SavingsConfig, error) {
	rows, err := q.db.QueryContext(ctx, q.dialect.Rebind(listSavingsConfigs), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []core.SavingsConfig{}
	for rows.Next() {
		s, err := scanSavingsConfig(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func scanCategory(s scanner) (core.Category, error) {
	var (
		c       core.Category
		typ     string
		created int64
	)
	if err := s.Scan(&c.ID, &c.Name, &typ, &c.UserID, &created); err != nil {
		return core.Category{}, err
	}
	c.Type = core.CategoryType(typ)
	c.CreatedAt = fromUnix(created)
	return c, nil
}

func scanItem(s scanner) (core.Item, error) {
	var (
		i       core.Item
		created int64
	)
	if err := s.Scan(&i.ID, &i.Name, &i.CategoryID, &i.IsRecurring, &created); err != nil {
		return core.Item{}, err
	}
	i.CreatedAt = fromUnix(created)
	return i, nil
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                  core.Transaction
		amount             float64
		projected          sql.NullFloat64
		due, created       int64
		status             string
		installment, total sql.NullInt64
		description        sql.NullString
		updated            sql.NullInt64
	)
	err := s.Scan(&t.ID, &t.ItemID, &amount, &projected, &due, &status,
		&installment, &total, &description, &t.IsInvestment, &created, &updated)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Amount = decimal.NewFromFloat(amount)
	if projected.Valid {
		t.ProjectedAmount = decimal.NewNullDecimal(decimal.NewFromFloat(projected.Float64))
	}
	t.DueDate = fromUnix(due)
	t.Status = core.Status(status)
	if installment.Valid {
		n := int(installment.Int64)
		t.InstallmentNumber = &n
	}
	if total.Valid {
		n := int(total.Int64)
		t.TotalInstallments = &n
	}
	if description.Valid {
		d := description.String
		t.Description = &d
	}
	t.CreatedAt = fromUnix(created)
	if updated.Valid {
		u := fromUnix(updated.Int64)
		t.UpdatedAt = &u
	}
	return t, nil
}

func scanSavingsConfig(s scanner) (core.SavingsConfig, error) {
	var (
		c       core.SavingsConfig
		pct     float64
		created int64
	)
	if err := s.Scan(&c.ID, &c.Name, &pct, &c.UserID, &created); err != nil {
		return core.SavingsConfig{}, err
	}
	c.Percentage = decimal.NewFromFloat(pct)
	c.CreatedAt = fromUnix(created)
	return c, nil
}

func toUnix(t time.Time) int64 {
	return t.UTC().Unix()
}

func fromUnix(s int64) time.Time {
	return time.Unix(s, 0).UTC()
}

func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return int64(*n)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
