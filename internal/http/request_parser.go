package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"projection/internal/core"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks bodies that are not valid JSON for the target shape.
var errBadRequest = errors.New("bad request")

type (
	createCategoryRequest struct {
		Name   string            `json:"name"`
		Type   core.CategoryType `json:"type"`
		UserID string            `json:"userId"`
	}

	createItemRequest struct {
		Name        string `json:"name"`
		CategoryID  int64  `json:"categoryId"`
		IsRecurring *bool  `json:"isRecurring"`
	}

	// createTransactionRequest names the item either by id or by name within
	// a category; the latter creates the item when missing.
	createTransactionRequest struct {
		ItemID            int64               `json:"itemId"`
		ItemName          string              `json:"itemName"`
		CategoryID        int64               `json:"categoryId"`
		Amount            decimal.Decimal     `json:"amount"`
		ProjectedAmount   decimal.NullDecimal `json:"projectedAmount"`
		DueDate           string              `json:"dueDate"`
		Status            core.Status         `json:"status"`
		TotalInstallments int                 `json:"totalInstallments"`
		Description       *string             `json:"description"`
		IsInvestment      bool                `json:"isInvestment"`
	}

	createSavingsConfigRequest struct {
		Name       string          `json:"name"`
		Percentage decimal.Decimal `json:"percentage"`
		UserID     string          `json:"userId"`
	}
)

// decodeJSON reads a single JSON document from the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", errBadRequest)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// parseDate accepts YYYY-MM-DD or RFC3339 and returns the instant in UTC.
func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, core.NewValidationError(field, "is required")
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, core.NewValidationError(field, "must be a date in YYYY-MM-DD or RFC3339 format")
}

// parseWindow reads monthsBack and monthsForward, falling back to defaults.
func parseWindow(query url.Values, defaultBack, defaultForward int) (int, int, error) {
	back, err := intParam(query, "monthsBack", defaultBack)
	if err != nil {
		return 0, 0, err
	}
	forward, err := intParam(query, "monthsForward", defaultForward)
	if err != nil {
		return 0, 0, err
	}
	return back, forward, nil
}

func intParam(query url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewValidationError("id", "must be a positive id")
	}
	return id, nil
}

// parsePatch decodes a partial update. A key that is present sets the
// field; a present null clears it.
func parsePatch(r *http.Request) (core.TransactionPatch, error) {
	var raw map[string]json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		return core.TransactionPatch{}, err
	}

	var (
		p   core.TransactionPatch
		err error
	)
	for key, value := range raw {
		switch key {
		case "amount":
			p.Amount, err = optionalDecimal(key, value)
		case "projectedAmount":
			p.ProjectedAmount, err = optionalDecimal(key, value)
		case "status":
			p.Status, err = optionalValue[core.Status](key, value)
		case "description":
			p.Description, err = optionalValue[string](key, value)
		case "isInvestment":
			p.IsInvestment, err = optionalValue[bool](key, value)
		case "dueDate":
			p.DueDate, err = optionalDate(key, value)
		}
		if err != nil {
			return core.TransactionPatch{}, err
		}
	}

	if p.IsEmpty() {
		return core.TransactionPatch{}, core.NewValidationError("body", "at least one updatable field is required")
	}
	return p, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func optionalValue[T any](field string, raw json.RawMessage) (core.Optional[T], error) {
	if isNull(raw) {
		return core.Null[T](), nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return core.Optional[T]{}, core.NewValidationError(field, "has the wrong type")
	}
	return core.Some(v), nil
}

func optionalDecimal(field string, raw json.RawMessage) (core.Optional[decimal.Decimal], error) {
	if isNull(raw) {
		return core.Null[decimal.Decimal](), nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return core.Optional[decimal.Decimal]{}, core.NewValidationError(field, "must be a number")
	}
	return core.Some(d), nil
}

func optionalDate(field string, raw json.RawMessage) (core.Optional[time.Time], error) {
	if isNull(raw) {
		return core.Null[time.Time](), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return core.Optional[time.Time]{}, core.NewValidationError(field, "must be a date string")
	}
	t, err := parseDate(field, s)
	if err != nil {
		return core.Optional[time.Time]{}, err
	}
	return core.Some(t), nil
}
