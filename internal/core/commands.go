package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	NewCategory struct {
		Name   string
		Type   CategoryType
		UserID string
	}

	NewItem struct {
		Name        string
		CategoryID  int64
		IsRecurring *bool
	}

	NewTransaction struct {
		ItemID            int64
		Amount            decimal.Decimal
		ProjectedAmount   decimal.NullDecimal
		DueDate           time.Time
		Status            Status
		TotalInstallments int
		Description       *string
		IsInvestment      bool
	}

	// Optional carries a field of a partial update: Set means the caller
	// supplied it, Null means it was supplied as an explicit null.
	Optional[T any] struct {
		Set   bool
		Null  bool
		Value T
	}

	// TransactionPatch is a partial update; unset fields are left unchanged.
	TransactionPatch struct {
		Amount          Optional[decimal.Decimal]
		ProjectedAmount Optional[decimal.Decimal]
		Status          Optional[Status]
		DueDate         Optional[time.Time]
		Description     Optional[string]
		IsInvestment    Optional[bool]
	}

	NewSavingsConfig struct {
		Name       string
		Percentage decimal.Decimal
		UserID     string
	}
)

// Some returns a supplied Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns a supplied Optional holding an explicit null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

func (c NewCategory) Validate() error {
	if err := validateName("name", c.Name); err != nil {
		return err
	}
	if !c.Type.IsValid() {
		return NewValidationError("type", "must be one of income, expense, savings")
	}
	if strings.TrimSpace(c.UserID) == "" {
		return NewValidationError("userId", "must not be empty")
	}
	return nil
}

func (i NewItem) Validate() error {
	if err := validateName("name", i.Name); err != nil {
		return err
	}
	if i.CategoryID <= 0 {
		return NewValidationError("categoryId", "must be a positive id")
	}
	return nil
}

// Recurring returns the recurring flag, defaulting to true.
func (i NewItem) Recurring() bool {
	if i.IsRecurring == nil {
		return true
	}
	return *i.IsRecurring
}

// WithDefaults fills the status and installment count when omitted.
func (t NewTransaction) WithDefaults() NewTransaction {
	if t.Status == "" {
		t.Status = StatusEstimated
	}
	if t.TotalInstallments == 0 {
		t.TotalInstallments = 1
	}
	return t
}

func (t NewTransaction) Validate() error {
	if t.ItemID <= 0 {
		return NewValidationError("itemId", "must be a positive id")
	}
	if t.DueDate.IsZero() {
		return NewValidationError("dueDate", "is required")
	}
	if !t.Status.IsValid() {
		return NewValidationError("status", "must be one of PENDING, ESTIMATED, CONFIRMED, PAID")
	}
	if t.TotalInstallments < 1 || t.TotalInstallments > MaxInstallments {
		return NewValidationError("totalInstallments", "must be between 1 and 360")
	}
	return nil
}

// Expand turns the request into the rows to insert: one row per installment,
// at consecutive months starting from the normalized due date.
func (t NewTransaction) Expand() []Transaction {
	t = t.WithDefaults()
	start := StartOfMonth(t.DueDate)
	rows := make([]Transaction, 0, t.TotalInstallments)
	for i := 0; i < t.TotalInstallments; i++ {
		number, total := i+1, t.TotalInstallments
		rows = append(rows, Transaction{
			ItemID:            t.ItemID,
			Amount:            t.Amount,
			ProjectedAmount:   t.ProjectedAmount,
			DueDate:           AddMonths(start, i),
			Status:            t.Status,
			IsInvestment:      t.IsInvestment,
			InstallmentNumber: &number,
			TotalInstallments: &total,
			Description:       t.Description,
		})
	}
	return rows
}

// IsEmpty reports whether the patch supplies no field at all.
func (p TransactionPatch) IsEmpty() bool {
	return !p.Amount.Set && !p.ProjectedAmount.Set && !p.Status.Set &&
		!p.DueDate.Set && !p.Description.Set && !p.IsInvestment.Set
}

func (p TransactionPatch) Validate() error {
	if p.Amount.Set && p.Amount.Null {
		return NewValidationError("amount", "must not be null")
	}
	if p.Status.Set && (p.Status.Null || !p.Status.Value.IsValid()) {
		return NewValidationError("status", "must be one of PENDING, ESTIMATED, CONFIRMED, PAID")
	}
	if p.DueDate.Set && (p.DueDate.Null || p.DueDate.Value.IsZero()) {
		return NewValidationError("dueDate", "must be a valid date")
	}
	if p.IsInvestment.Set && p.IsInvestment.Null {
		return NewValidationError("isInvestment", "must not be null")
	}
	return nil
}

// Apply returns t with the supplied fields replaced. The due date stays
// normalized to the first of its month.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Amount.Set {
		t.Amount = p.Amount.Value
	}
	if p.ProjectedAmount.Set {
		if p.ProjectedAmount.Null {
			t.ProjectedAmount = decimal.NullDecimal{}
		} else {
			t.ProjectedAmount = decimal.NewNullDecimal(p.ProjectedAmount.Value)
		}
	}
	if p.Status.Set {
		t.Status = p.Status.Value
	}
	if p.DueDate.Set {
		t.DueDate = StartOfMonth(p.DueDate.Value)
	}
	if p.Description.Set {
		if p.Description.Null {
			t.Description = nil
		} else {
			desc := p.Description.Value
			t.Description = &desc
		}
	}
	if p.IsInvestment.Set {
		t.IsInvestment = p.IsInvestment.Value
	}
	return t
}

func (s NewSavingsConfig) Validate() error {
	if err := validateName("name", s.Name); err != nil {
		return err
	}
	if s.Percentage.IsNegative() || s.Percentage.GreaterThan(decimal.NewFromInt(1)) {
		return NewValidationError("percentage", "must be a fraction between 0 and 1")
	}
	if strings.TrimSpace(s.UserID) == "" {
		return NewValidationError("userId", "must not be empty")
	}
	return nil
}
