package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  CategoryType = "income"
	Expense CategoryType = "expense"
	Savings CategoryType = "savings"
)

const (
	StatusPending   Status = "PENDING"
	StatusEstimated Status = "ESTIMATED"
	StatusConfirmed Status = "CONFIRMED"
	StatusPaid      Status = "PAID"
)

const (
	// MaxInstallments bounds a single installment expansion.
	MaxInstallments = 360
	// MaxWindowMonths bounds monthsBack and monthsForward of a board query.
	MaxWindowMonths = 120
	maxNameLength   = 255
)

type (
	CategoryType string

	// Status of a transaction. Any status may move to any other.
	Status string

	Category struct {
		ID        int64        `json:"id"`
		Name      string       `json:"name"`
		Type      CategoryType `json:"type"`
		UserID    string       `json:"userId"`
		CreatedAt time.Time    `json:"createdAt"`
	}

	Item struct {
		ID          int64     `json:"id"`
		Name        string    `json:"name"`
		CategoryID  int64     `json:"categoryId"`
		IsRecurring bool      `json:"isRecurring"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	Transaction struct {
		ID                int64               `json:"id"`
		ItemID            int64               `json:"itemId"`
		Amount            decimal.Decimal     `json:"amount"`
		ProjectedAmount   decimal.NullDecimal `json:"projectedAmount"`
		DueDate           time.Time           `json:"dueDate"`
		Status            Status              `json:"status"`
		IsInvestment      bool                `json:"isInvestment"`
		InstallmentNumber *int                `json:"installmentNumber"`
		TotalInstallments *int                `json:"totalInstallments"`
		Description       *string             `json:"description"`
		CreatedAt         time.Time           `json:"createdAt"`
		UpdatedAt         *time.Time          `json:"updatedAt"`
	}

	SavingsConfig struct {
		ID         int64           `json:"id"`
		Name       string          `json:"name"`
		Percentage decimal.Decimal `json:"percentage"`
		UserID     string          `json:"userId"`
		CreatedAt  time.Time       `json:"createdAt"`
	}

	// CategoryWithItems is the getCategories shape.
	CategoryWithItems struct {
		Category
		Items []Item `json:"items"`
	}

	// ItemWithTransactions is an item node of the board tree.
	ItemWithTransactions struct {
		Item
		Transactions []Transaction `json:"transactions"`
	}

	// BoardCategory is a category node of the board tree.
	BoardCategory struct {
		Category
		Items []ItemWithTransactions `json:"items"`
	}

	// ItemWithCategory is the item joined onto a listed transaction.
	ItemWithCategory struct {
		Item
		Category Category `json:"category"`
	}

	// TransactionDetail is a transaction joined with its item and category.
	TransactionDetail struct {
		Transaction
		Item ItemWithCategory `json:"item"`
	}
)

// IsValid reports whether t is one of the known category types.
func (t CategoryType) IsValid() bool {
	switch t {
	case Income, Expense, Savings:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusEstimated, StatusConfirmed, StatusPaid:
		return true
	default:
		return false
	}
}

// CategoryTypes lists category types in board order.
func CategoryTypes() []CategoryType {
	return []CategoryType{Income, Expense, Savings}
}

// Statuses lists all transaction statuses.
func Statuses() []Status {
	return []Status{StatusPending, StatusEstimated, StatusConfirmed, StatusPaid}
}

// IsInstallment reports whether the transaction belongs to a series of more than one row.
func (t Transaction) IsInstallment() bool {
	return t.TotalInstallments != nil && *t.TotalInstallments > 1
}

// ProjectedDiffers reports whether a projected amount is set and differs from the actual one.
func (t Transaction) ProjectedDiffers() bool {
	return t.ProjectedAmount.Valid && !t.ProjectedAmount.Decimal.Equal(t.Amount)
}

func validateName(field, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return NewValidationError(field, "must not be empty")
	}
	if len(name) > maxNameLength {
		return NewValidationError(field, "too long (max 255 characters)")
	}
	return nil
}
