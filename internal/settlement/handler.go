package settlement

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/money"
	"github.com/fkhayef/expensesplitter/pkg/middleware"
	"github.com/fkhayef/expensesplitter/pkg/response"
	"github.com/fkhayef/expensesplitter/pkg/validate"
)

// Handler handles HTTP requests for settlement operations
type Handler struct {
	service *Service
}

// NewHandler creates a new settlement handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for settlement endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireMember)

	r.Post("/", h.Create)
	r.Get("/{id}", h.GetByID)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/cancel", h.Cancel)

	r.Get("/group/{groupId}", h.ListByGroup)

	return r
}

// writeError maps service errors onto the response envelope
func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrSettlementNotFound), errors.Is(err, ErrGroupNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrNotGroupMember), errors.Is(err, ErrNotParty):
		response.Forbidden(w, err.Error())
	case errors.Is(err, ErrPartyNotMember), errors.Is(err, ErrCannotSettleSelf), errors.Is(err, ErrNonPositiveAmount),
		errors.Is(err, ErrExpenseNotInGroup), errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, money.ErrInvalidCurrency), errors.Is(err, money.ErrTooPrecise),
		errors.Is(err, money.ErrAmountTooLarge):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrInvalidStatusChange):
		response.Conflict(w, err.Error())
	default:
		response.InternalError(w, fallback)
	}
}

// Create handles POST /settlements
// @Summary      Record a settlement
// @Description  Record a payment from one group member to another. It counts toward balances once COMPLETED (the default).
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        request body CreateSettlementRequest true "Settlement details"
// @Success      201 {object} response.APIResponse{data=SettlementResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /settlements [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())

	var req CreateSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	settlement, err := h.service.CreateSettlement(r.Context(), actorID, &req)
	if err != nil {
		writeError(w, err, "Failed to create settlement")
		return
	}

	response.JSON(w, http.StatusCreated, settlement.ToResponse())
}

// GetByID handles GET /settlements/{id}
// @Summary      Get settlement by ID
// @Tags         settlements
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        id path string true "Settlement ID"
// @Success      200 {object} response.APIResponse{data=SettlementResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /settlements/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	settlement, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "Failed to get settlement")
		return
	}

	response.JSON(w, http.StatusOK, settlement.ToResponse())
}

// Complete handles POST /settlements/{id}/complete
// @Summary      Complete a pending settlement
// @Description  The payer or payee confirms the payment was made
// @Tags         settlements
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        id path string true "Settlement ID"
// @Success      200 {object} response.APIResponse{data=SettlementResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /settlements/{id}/complete [post]
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())

	settlement, err := h.service.CompleteSettlement(r.Context(), chi.URLParam(r, "id"), actorID)
	if err != nil {
		writeError(w, err, "Failed to complete settlement")
		return
	}

	response.JSON(w, http.StatusOK, settlement.ToResponse())
}

// Cancel handles POST /settlements/{id}/cancel
// @Summary      Cancel a settlement
// @Tags         settlements
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        id path string true "Settlement ID"
// @Success      200 {object} response.APIResponse{data=SettlementResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /settlements/{id}/cancel [post]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())

	settlement, err := h.service.CancelSettlement(r.Context(), chi.URLParam(r, "id"), actorID)
	if err != nil {
		writeError(w, err, "Failed to cancel settlement")
		return
	}

	response.JSON(w, http.StatusOK, settlement.ToResponse())
}

// ListByGroup handles GET /settlements/group/{groupId}
// @Summary      List a group's settlements
// @Tags         settlements
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        groupId path string true "Group ID"
// @Param        member_id query string false "Only settlements this member paid or received"
// @Param        status query string false "PENDING, COMPLETED or CANCELLED"
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page" default(20)
// @Success      200 {object} response.APIResponse{data=[]SettlementResponse}
// @Failure      403 {object} response.APIResponse
// @Router       /settlements/group/{groupId} [get]
func (h *Handler) ListByGroup(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())
	query := r.URL.Query()

	filter := ListFilter{
		MemberID: query.Get("member_id"),
		Status:   ledger.SettlementStatus(query.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		response.BadRequest(w, "Invalid status. Must be PENDING, COMPLETED or CANCELLED")
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

	settlements, total, err := h.service.ListByGroup(r.Context(), chi.URLParam(r, "groupId"), actorID, filter, page, perPage)
	if err != nil {
		writeError(w, err, "Failed to list settlements")
		return
	}

	settlementResponses := make([]*SettlementResponse, len(settlements))
	for i, s := range settlements {
		settlementResponses[i] = s.ToResponse()
	}

	response.JSONWithMeta(w, http.StatusOK, settlementResponses, response.NewMeta(page, perPage, total))
}
