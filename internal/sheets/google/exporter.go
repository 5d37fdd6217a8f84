package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"projection/internal/core"
	"projection/internal/log"
	"projection/internal/ports"
)

// Config selects the target spreadsheet and the service account used to
// write to it. CredentialsJSON wins over CredentialsFile.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Exporter mirrors the projection board into a single sheet.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

var _ ports.BoardExporter = (*Exporter)(nil)

// NewExporter creates a Sheets client authenticated with a service account.
func NewExporter(ctx context.Context, cfg Config, logger *log.Logger) (*Exporter, error) {
	credentialsJSON, err := readCredentials(cfg)
	if err != nil {
		return nil, err
	}
	return newExporter(ctx, cfg, logger,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

func newExporter(ctx context.Context, cfg Config, logger *log.Logger, opts ...goption.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Projection"
	}
	if logger == nil {
		logger = log.Discard()
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Exporter{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		logger:        logger.WithComponent(log.ComponentSheets),
	}, nil
}

func readCredentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// ExportBoard replaces the sheet content with the board matrix.
func (e *Exporter) ExportBoard(ctx context.Context, board core.Board) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := quoteSheet(e.sheetName)
	clearRange := sheet + "!A1:ZZ"
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	rows := BoardRows(board)
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, sheet+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", e.sheetName, err)
	}

	e.logger.InfoContext(ctx, "Board exported",
		log.FieldOperation, log.OpExport,
		log.FieldRowCount, len(rows),
		"sheet", e.sheetName)
	return nil
}

// BoardRows lays the board out as sheet rows: a header with the month keys,
// then per type a label row, per category a totals row followed by its item
// rows, and finally the net balance. Empty cells are written as "".
func BoardRows(board core.Board) [][]interface{} {
	width := len(board.Months) + 2

	header := make([]interface{}, 0, width)
	header = append(header, "Category", "Item")
	for _, m := range board.Months {
		header = append(header, m.Key)
	}
	rows := [][]interface{}{header}

	for _, group := range board.Groups {
		rows = append(rows, []interface{}{strings.ToUpper(string(group.Type))})
		for _, cat := range group.Categories {
			row := make([]interface{}, 0, width)
			row = append(row, cat.Category.Name, "")
			for _, total := range cat.Totals {
				row = append(row, total.InexactFloat64())
			}
			rows = append(rows, row)

			for _, item := range cat.Items {
				row := make([]interface{}, 0, width)
				row = append(row, "", item.Item.Name)
				for _, cell := range item.Cells {
					if cell.Empty {
						row = append(row, "")
						continue
					}
					row = append(row, cell.Amount.InexactFloat64())
				}
				rows = append(rows, row)
			}
		}
	}

	net := make([]interface{}, 0, width)
	net = append(net, "Net balance", "")
	for _, v := range board.NetBalance {
		net = append(net, v.InexactFloat64())
	}
	return append(rows, net)
}

// quoteSheet wraps a sheet name for use in A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
