package http

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/number"

	"projection/internal/core"
	"projection/internal/log"
)

type boardPage struct {
	Board         core.Board
	MonthsBack    int
	MonthsForward int
	Locale        string
}

func (s *Server) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money": s.formatMoney,
		"upper": strings.ToUpper,
		"typeLabel": func(t core.CategoryType) string {
			switch t {
			case core.Income:
				return "Ingresos"
			case core.Expense:
				return "Gastos"
			case core.Savings:
				return "Ahorro"
			}
			return string(t)
		},
		"negative": func(d decimal.Decimal) bool { return d.IsNegative() },
		"add":      func(a, b int) int { return a + b },
	}
}

// formatMoney renders an amount with the grouping of the display locale.
func (s *Server) formatMoney(d decimal.Decimal) string {
	return s.printer.Sprint(number.Decimal(d.InexactFloat64(), number.MaxFractionDigits(2)))
}

func (s *Server) handleBoardPage(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	back, forward, err := parseWindow(r.URL.Query(), s.opts.MonthsBack, s.opts.MonthsForward)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	board, err := s.service.BoardView(r.Context(), back, forward)
	if err != nil {
		if _, ok := core.AsValidationError(err); ok {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		s.logger.ErrorContext(r.Context(), "Failed to load board",
			log.FieldOperation, log.OpRender,
			log.FieldError, err)
		http.Error(w, "failed to load board", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "board.html", boardPage{
		Board:         board,
		MonthsBack:    back,
		MonthsForward: forward,
		Locale:        s.opts.Locale.String(),
	}); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to render board",
			log.FieldOperation, log.OpRender,
			log.FieldError, err)
		http.Error(w, "failed to render board", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
