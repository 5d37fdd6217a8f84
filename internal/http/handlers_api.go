package http

import (
	"net/http"
	"strings"

	"projection/internal/core"
	"projection/internal/log"
)

type ensureItemResponse struct {
	Item    core.Item `json:"item"`
	Created bool      `json:"created"`
}

func (s *Server) handleGetCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.service.GetCategories(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = s.service.DefaultUserID()
	}

	created, err := s.service.CreateCategory(r.Context(), core.NewCategory{
		Name:   req.Name,
		Type:   req.Type,
		UserID: req.UserID,
	})
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}

	created, err := s.service.CreateItem(r.Context(), core.NewItem{
		Name:        req.Name,
		CategoryID:  req.CategoryID,
		IsRecurring: req.IsRecurring,
	})
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleEnsureItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, log.OpEnsure, err)
		return
	}

	item, created, err := s.service.EnsureItem(r.Context(), core.NewItem{
		Name:        req.Name,
		CategoryID:  req.CategoryID,
		IsRecurring: req.IsRecurring,
	})
	if err != nil {
		s.writeError(w, r, log.OpEnsure, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, ensureItemResponse{Item: item, Created: created})
}

func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate("from", q.Get("from"))
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	to, err := parseDate("to", q.Get("to"))
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}

	rows, err := s.service.GetTransactions(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	dueDate, err := parseDate("dueDate", req.DueDate)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}

	itemID := req.ItemID
	if itemID == 0 && strings.TrimSpace(req.ItemName) != "" {
		item, _, err := s.service.EnsureItem(r.Context(), core.NewItem{Name: req.ItemName, CategoryID: req.CategoryID})
		if err != nil {
			s.writeError(w, r, log.OpEnsure, err)
			return
		}
		itemID = item.ID
	}

	rows, err := s.service.CreateTransaction(r.Context(), core.NewTransaction{
		ItemID:            itemID,
		Amount:            req.Amount,
		ProjectedAmount:   req.ProjectedAmount,
		DueDate:           dueDate,
		Status:            req.Status,
		TotalInstallments: req.TotalInstallments,
		Description:       req.Description,
		IsInvestment:      req.IsInvestment,
	})
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, rows)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	patch, err := parsePatch(r)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}

	updated, err := s.service.UpdateTransaction(r.Context(), id, patch)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}

	deleted, err := s.service.DeleteTransaction(r.Context(), id)
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	if deleted == nil {
		deleted = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (s *Server) handleGetBoardData(w http.ResponseWriter, r *http.Request) {
	back, forward, err := parseWindow(r.URL.Query(), s.opts.MonthsBack, s.opts.MonthsForward)
	if err != nil {
		s.writeError(w, r, log.OpBoard, err)
		return
	}

	tree, err := s.service.GetBoardData(r.Context(), back, forward)
	if err != nil {
		s.writeError(w, r, log.OpBoard, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleBoardView(w http.ResponseWriter, r *http.Request) {
	back, forward, err := parseWindow(r.URL.Query(), s.opts.MonthsBack, s.opts.MonthsForward)
	if err != nil {
		s.writeError(w, r, log.OpBoard, err)
		return
	}

	board, err := s.service.BoardView(r.Context(), back, forward)
	if err != nil {
		s.writeError(w, r, log.OpBoard, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleListSavingsConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.service.ListSavingsConfigs(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	if configs == nil {
		configs = []core.SavingsConfig{}
	}
	writeJSON(w, http.StatusOK, configs)
}

func (s *Server) handleCreateSavingsConfig(w http.ResponseWriter, r *http.Request) {
	var req createSavingsConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}

	created, err := s.service.CreateSavingsConfig(r.Context(), core.NewSavingsConfig{
		Name:       req.Name,
		Percentage: req.Percentage,
		UserID:     req.UserID,
	})
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
