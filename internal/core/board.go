package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Band is the colour band a cell is rendered with.
type Band string

const (
	BandDanger      Band = "danger"
	BandWarning     Band = "warning"
	BandSuccessSoft Band = "success-soft"
	BandSuccess     Band = "success"
)

type (
	MonthColumn struct {
		Key       string    `json:"key"`
		Date      time.Time `json:"date"`
		IsCurrent bool      `json:"isCurrent"`
	}

	// Cell is the value of one (item, month) position of the board.
	Cell struct {
		Month            string          `json:"month"`
		Transaction      *Transaction    `json:"transaction,omitempty"`
		Amount           decimal.Decimal `json:"amount"`
		Empty            bool            `json:"empty"`
		Band             Band            `json:"band"`
		ProjectedDiffers bool            `json:"projectedDiffers"`
		Duplicates       int             `json:"duplicates"`
	}

	ItemRow struct {
		Item  Item   `json:"item"`
		Cells []Cell `json:"cells"`
	}

	CategoryRow struct {
		Category Category          `json:"category"`
		Items    []ItemRow         `json:"items"`
		Totals   []decimal.Decimal `json:"totals"`
	}

	TypeGroup struct {
		Type       CategoryType  `json:"type"`
		Categories []CategoryRow `json:"categories"`
	}

	MonthTotals struct {
		Month   string          `json:"month"`
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
		Balance decimal.Decimal `json:"balance"`
	}

	Board struct {
		Months     []MonthColumn     `json:"months"`
		Groups     []TypeGroup       `json:"groups"`
		NetBalance []decimal.Decimal `json:"netBalance"`
		Current    MonthTotals       `json:"current"`
	}
)

// StatusBand maps a status to its colour band. Empty cells use the
// ESTIMATED band.
func StatusBand(s Status) Band {
	switch s {
	case StatusPending:
		return BandDanger
	case StatusConfirmed:
		return BandSuccessSoft
	case StatusPaid:
		return BandSuccess
	default:
		return BandWarning
	}
}

// BuildBoard shapes a board tree into the month matrix. Only the
// transaction with the lowest id of a bucket counts as the cell value;
// further rows in the same month are reported through Duplicates.
func BuildBoard(tree []BoardCategory, now time.Time, monthsBack, monthsForward int) Board {
	window := BoardWindow(now, monthsBack, monthsForward)
	currentKey := MonthKey(StartOfMonth(now))

	months := window.Months()
	columns := make([]MonthColumn, len(months))
	index := make(map[string]int, len(months))
	for i, m := range months {
		key := MonthKey(m)
		columns[i] = MonthColumn{Key: key, Date: m, IsCurrent: key == currentKey}
		index[key] = i
	}

	board := Board{
		Months:     columns,
		NetBalance: zeros(len(months)),
		Current:    MonthTotals{Month: currentKey},
	}

	byType := make(map[CategoryType][]CategoryRow)
	for _, cat := range tree {
		row := CategoryRow{Category: cat.Category, Totals: zeros(len(months))}
		for _, item := range cat.Items {
			itemRow := buildItemRow(item, columns, index)
			for i, cell := range itemRow.Cells {
				row.Totals[i] = row.Totals[i].Add(cell.Amount)
			}
			row.Items = append(row.Items, itemRow)
		}
		byType[cat.Type] = append(byType[cat.Type], row)
	}

	for _, t := range CategoryTypes() {
		rows, ok := byType[t]
		if !ok {
			continue
		}
		board.Groups = append(board.Groups, TypeGroup{Type: t, Categories: rows})

		for _, row := range rows {
			for i, total := range row.Totals {
				switch t {
				case Income:
					board.NetBalance[i] = board.NetBalance[i].Add(total)
				case Expense:
					board.NetBalance[i] = board.NetBalance[i].Sub(total)
				}
			}
			if i, ok := index[currentKey]; ok {
				switch t {
				case Income:
					board.Current.Income = board.Current.Income.Add(row.Totals[i])
				case Expense:
					board.Current.Expense = board.Current.Expense.Add(row.Totals[i])
				}
			}
		}
	}
	board.Current.Balance = board.Current.Income.Sub(board.Current.Expense)

	return board
}

func buildItemRow(item ItemWithTransactions, columns []MonthColumn, index map[string]int) ItemRow {
	cells := make([]Cell, len(columns))
	for i, col := range columns {
		cells[i] = Cell{Month: col.Key, Empty: true, Band: StatusBand(StatusEstimated)}
	}

	for i := range item.Transactions {
		tx := item.Transactions[i]
		pos, ok := index[MonthKey(tx.DueDate)]
		if !ok {
			continue
		}
		cell := &cells[pos]
		if cell.Empty {
			cell.Empty = false
			cell.Transaction = &tx
			continue
		}
		cell.Duplicates++
		if tx.ID < cell.Transaction.ID {
			cell.Transaction = &tx
		}
	}

	for i := range cells {
		if tx := cells[i].Transaction; tx != nil {
			cells[i].Amount = tx.Amount
			cells[i].Band = StatusBand(tx.Status)
			cells[i].ProjectedDiffers = tx.ProjectedDiffers()
		}
	}

	return ItemRow{Item: item.Item, Cells: cells}
}

func zeros(n int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = decimal.Zero
	}
	return out
}
