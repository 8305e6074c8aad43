package expense

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/expensesplitter/internal/expense/split"
	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/money"
	"github.com/fkhayef/expensesplitter/pkg/middleware"
	"github.com/fkhayef/expensesplitter/pkg/response"
	"github.com/fkhayef/expensesplitter/pkg/validate"
)

// Handler handles HTTP requests for expense operations
type Handler struct {
	service *Service
}

// NewHandler creates a new expense handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for expense endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireMember)

	r.Post("/", h.Create)
	r.Post("/preview", h.Preview)
	r.Get("/{id}", h.GetByID)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)

	// Status changes
	r.Post("/{id}/settle", h.Settle)
	r.Post("/{id}/unsettle", h.Unsettle)
	r.Post("/{id}/restore", h.Restore)

	// Group-based listing
	r.Get("/group/{groupId}", h.ListByGroup)
	r.Get("/group/{groupId}/categories", h.CategoryTotals)

	return r
}

// writeError maps service errors onto the response envelope
func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrExpenseNotFound), errors.Is(err, ErrGroupNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrNotGroupMember), errors.Is(err, ErrNotAuthorized):
		response.Forbidden(w, err.Error())
	case split.IsValidationError(err), errors.Is(err, ErrPayerNotMember), errors.Is(err, ErrParticipantNotMember),
		errors.Is(err, money.ErrCurrencyMismatch), errors.Is(err, money.ErrInvalidCurrency):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrInvalidStatusChange), errors.Is(err, ErrExpenseDeleted):
		response.Conflict(w, err.Error())
	default:
		response.InternalError(w, fallback)
	}
}

// Create handles POST /expenses
// @Summary      Create a new expense
// @Description  Create an expense and compute every participant's share with the EQUAL, EXACT_AMOUNTS, PERCENTAGES or SHARES strategy
// @Tags         expenses
// @Accept       json
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        request body CreateExpenseRequest true "Expense creation request"
// @Success      201 {object} response.APIResponse{data=ExpenseResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /expenses [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())

	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	result, err := h.service.CreateExpense(r.Context(), actorID, &req)
	if err != nil {
		writeError(w, err, "Failed to create expense")
		return
	}

	response.JSON(w, http.StatusCreated, result.ToResponse())
}

// Preview handles POST /expenses/preview
// @Summary      Preview a split
// @Description  Compute what every participant would owe without saving an expense
// @Tags         expenses
// @Accept       json
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        request body PreviewRequest true "Split to preview"
// @Success      200 {object} response.APIResponse{data=PreviewResponse}
// @Failure      400 {object} response.APIResponse
// @Router       /expenses/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	allocation, err := h.service.PreviewSplit(&req)
	if err != nil {
		writeError(w, err, "Failed to preview split")
		return
	}

	resp := &PreviewResponse{Shares: make(map[string]string, len(allocation))}
	for memberID, m := range allocation {
		resp.Currency = m.Currency
		resp.Shares[memberID] = m.Amount.StringFixed(money.Exponent(m.Currency))
	}

	response.JSON(w, http.StatusOK, resp)
}

// GetByID handles GET /expenses/{id}
// @Summary      Get expense by ID
// @Description  Get an expense with all its splits
// @Tags         expenses
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        id path string true "Expense ID"
// @Success      200 {object} response.APIResponse{data=ExpenseResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /expenses/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetExpenseByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "Failed to get expense")
		return
	}

	response.JSON(w, http.StatusOK, result.ToResponse())
}

// Update handles PUT /expenses/{id}
// @Summary      Update an expense
// @Description  Edit an expense; changing the amount, payer or split recomputes every share
// @Tags         expenses
// @Accept       json
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        id path string true "Expense ID"
// @Param        request body UpdateExpenseRequest true "Expense update request"
// @Success      200 {object} response.APIResponse{data=ExpenseResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /expenses/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())

	var req UpdateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	result, err := h.service.UpdateExpense(r.Context(), chi.URLParam(r, "id"), actorID, &req)
	if err != nil {
		writeError(w, err, "Failed to update expense")
		return
	}

	response.JSON(w, http.StatusOK, result.ToResponse())
}

// Delete handles DELETE /expenses/{id}
// @Summary      Delete an expense
// @Description  Soft-delete an expense; it can be restored until the retention sweep removes it
// @Tags         expenses
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        id path string true "Expense ID"
// @Success      200 {object} response.APIResponse{data=ExpenseResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /expenses/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.DeleteExpense, "Failed to delete expense")
}

// Settle handles POST /expenses/{id}/settle
// @Summary      Settle an expense
// @Tags         expenses
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        id path string true "Expense ID"
// @Success      200 {object} response.APIResponse{data=ExpenseResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /expenses/{id}/settle [post]
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.SettleExpense, "Failed to settle expense")
}

// Unsettle handles POST /expenses/{id}/unsettle
// @Summary      Unsettle an expense
// @Tags         expenses
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        id path string true "Expense ID"
// @Success      200 {object} response.APIResponse{data=ExpenseResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /expenses/{id}/unsettle [post]
func (h *Handler) Unsettle(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.UnsettleExpense, "Failed to unsettle expense")
}

// Restore handles POST /expenses/{id}/restore
// @Summary      Restore a deleted expense
// @Tags         expenses
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        id path string true "Expense ID"
// @Success      200 {object} response.APIResponse{data=ExpenseResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /expenses/{id}/restore [post]
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.RestoreExpense, "Failed to restore expense")
}

type statusChange func(ctx context.Context, id, actorID string) (*Expense, error)

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, change statusChange, fallback string) {
	actorID, _ := middleware.GetMemberID(r.Context())

	expense, err := change(r.Context(), chi.URLParam(r, "id"), actorID)
	if err != nil {
		writeError(w, err, fallback)
		return
	}

	response.JSON(w, http.StatusOK, expense.ToResponse())
}

// ListByGroup handles GET /expenses/group/{groupId}
// @Summary      List expenses by group
// @Description  Get a paginated list of a group's expenses, newest first. Deleted expenses are only listed when asked for by status.
// @Tags         expenses
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        groupId path string true "Group ID"
// @Param        status query string false "ACTIVE, SETTLED or DELETED"
// @Param        payer_id query string false "Only expenses paid by this member"
// @Param        q query string false "Search description and notes"
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page" default(20)
// @Success      200 {object} response.APIResponse{data=[]ExpenseResponse}
// @Failure      403 {object} response.APIResponse
// @Router       /expenses/group/{groupId} [get]
func (h *Handler) ListByGroup(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())
	query := r.URL.Query()

	filter := ListFilter{
		Status:  ledger.ExpenseStatus(query.Get("status")),
		PayerID: query.Get("payer_id"),
		Search:  query.Get("q"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		response.BadRequest(w, "Invalid status. Must be ACTIVE, SETTLED or DELETED")
		return
	}

	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("per_page"))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	expenses, total, err := h.service.ListExpensesByGroupID(r.Context(), chi.URLParam(r, "groupId"), actorID, filter, page, perPage)
	if err != nil {
		writeError(w, err, "Failed to list expenses")
		return
	}

	expenseResponses := make([]*ExpenseResponse, len(expenses))
	for i, e := range expenses {
		expenseResponses[i] = e.ToResponse()
	}

	response.JSONWithMeta(w, http.StatusOK, expenseResponses, response.NewMeta(page, perPage, total))
}

// CategoryTotals handles GET /expenses/group/{groupId}/categories
// @Summary      Spending per category
// @Description  Sum a group's non-deleted expenses per category over a date range (defaults to the last 30 days)
// @Tags         expenses
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        groupId path string true "Group ID"
// @Param        from query string false "Start date (YYYY-MM-DD or RFC3339)"
// @Param        to query string false "End date (YYYY-MM-DD or RFC3339)"
// @Success      200 {object} response.APIResponse{data=[]CategoryTotalResponse}
// @Failure      400 {object} response.APIResponse
// @Router       /expenses/group/{groupId}/categories [get]
func (h *Handler) CategoryTotals(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = parseDate(v, false); err != nil {
			response.BadRequest(w, "Invalid from date")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = parseDate(v, true); err != nil {
			response.BadRequest(w, "Invalid to date")
			return
		}
	}
	if to.Before(from) {
		response.BadRequest(w, "to must not be before from")
		return
	}

	totals, currency, err := h.service.CategoryTotals(r.Context(), chi.URLParam(r, "groupId"), actorID, from, to)
	if err != nil {
		writeError(w, err, "Failed to compute category totals")
		return
	}

	resp := make([]*CategoryTotalResponse, len(totals))
	for i, t := range totals {
		resp[i] = t.ToResponse(currency)
	}

	response.JSON(w, http.StatusOK, resp)
}

// parseDate accepts RFC3339 or a bare date; a bare end date covers the whole day
func parseDate(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
