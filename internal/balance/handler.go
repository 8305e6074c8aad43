package balance

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/expensesplitter/internal/changefeed"
	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/metrics"
	"github.com/fkhayef/expensesplitter/pkg/middleware"
	"github.com/fkhayef/expensesplitter/pkg/response"
)

// Handler handles HTTP requests for balance queries
type Handler struct {
	service  *Service
	hub      *changefeed.Hub
	metrics  *metrics.Metrics
	debounce time.Duration
}

// NewHandler creates a new balance handler. debounce is how long a stream
// waits for a burst of changes to settle before recomputing.
func NewHandler(service *Service, hub *changefeed.Hub, m *metrics.Metrics, debounce time.Duration) *Handler {
	return &Handler{service: service, hub: hub, metrics: m, debounce: debounce}
}

// Routes returns the router for balance endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireMember)

	r.Get("/me", h.Me)
	r.Get("/groups/{groupId}", h.Group)
	r.Get("/groups/{groupId}/members/{memberId}", h.Member)
	r.Get("/groups/{groupId}/debts", h.Debts)
	r.Get("/groups/{groupId}/stream", h.Stream)

	return r
}

// writeError maps service errors onto the response envelope
func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrGroupNotFound), errors.Is(err, ledger.ErrGroupNotFound),
		errors.Is(err, ledger.ErrMemberNotInGroup):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrNotGroupMember):
		response.Forbidden(w, err.Error())
	case errors.Is(err, ledger.ErrLedgerInconsistency):
		response.UnprocessableEntity(w, err.Error())
	default:
		response.InternalError(w, fallback)
	}
}

// parseQuery reads include_settled and skip_inconsistent
func parseQuery(r *http.Request) (Query, error) {
	var q Query
	values := r.URL.Query()

	if v := values.Get("include_settled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return q, fmt.Errorf("invalid include_settled: %q", v)
		}
		q.IncludeSettled = &b
	}
	if v := values.Get("skip_inconsistent"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return q, fmt.Errorf("invalid skip_inconsistent: %q", v)
		}
		q.SkipInconsistent = b
	}
	return q, nil
}

// Group handles GET /balances/groups/{groupId}
// @Summary      Get a group's balances
// @Description  Net balance of every member. Positive means the group owes the member.
// @Tags         balances
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        groupId path string true "Group ID"
// @Param        include_settled query bool false "Count SETTLED expenses too"
// @Param        skip_inconsistent query bool false "Leave inconsistent entries out instead of failing"
// @Success      200 {object} response.APIResponse{data=GroupBalancesResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Router       /balances/groups/{groupId} [get]
func (h *Handler) Group(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())
	q, err := parseQuery(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	balances, err := h.service.GroupBalances(r.Context(), chi.URLParam(r, "groupId"), actorID, q)
	if err != nil {
		writeError(w, err, "Failed to compute balances")
		return
	}

	response.JSON(w, http.StatusOK, NewGroupBalancesResponse(balances))
}

// Member handles GET /balances/groups/{groupId}/members/{memberId}
// @Summary      Get one member's balance in a group
// @Tags         balances
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        groupId path string true "Group ID"
// @Param        memberId path string true "Member ID"
// @Param        include_settled query bool false "Count SETTLED expenses too"
// @Param        skip_inconsistent query bool false "Leave inconsistent entries out instead of failing"
// @Success      200 {object} response.APIResponse{data=SingleBalanceResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Router       /balances/groups/{groupId}/members/{memberId} [get]
func (h *Handler) Member(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())
	q, err := parseQuery(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	groupID, memberID := chi.URLParam(r, "groupId"), chi.URLParam(r, "memberId")
	balance, err := h.service.MemberBalance(r.Context(), groupID, memberID, actorID, q)
	if err != nil {
		writeError(w, err, "Failed to compute balance")
		return
	}

	response.JSON(w, http.StatusOK, &SingleBalanceResponse{
		GroupID:  groupID,
		MemberID: memberID,
		Currency: balance.Currency,
		Balance:  format(balance),
	})
}

// Debts handles GET /balances/groups/{groupId}/debts
// @Summary      Suggest settlements
// @Description  A small set of payments that would bring every balance in the group to zero
// @Tags         balances
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        groupId path string true "Group ID"
// @Param        include_settled query bool false "Count SETTLED expenses too"
// @Success      200 {object} response.APIResponse{data=[]TransferResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Router       /balances/groups/{groupId}/debts [get]
func (h *Handler) Debts(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())
	q, err := parseQuery(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	transfers, err := h.service.Debts(r.Context(), chi.URLParam(r, "groupId"), actorID, q)
	if err != nil {
		writeError(w, err, "Failed to compute debts")
		return
	}

	response.JSON(w, http.StatusOK, NewTransfersResponse(transfers))
}

// Me handles GET /balances/me
// @Summary      Get my balances
// @Description  The acting member's balance in each of their groups, with one grand total per currency
// @Tags         balances
// @Produce      json
// @Param        X-Member-ID header string true "Acting member"
// @Param        include_settled query bool false "Count SETTLED expenses too"
// @Param        skip_inconsistent query bool false "Leave inconsistent entries out instead of failing"
// @Success      200 {object} response.APIResponse{data=MemberSummaryResponse}
// @Failure      422 {object} response.APIResponse
// @Router       /balances/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())
	q, err := parseQuery(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	summary, err := h.service.MemberSummary(r.Context(), actorID, q)
	if err != nil {
		writeError(w, err, "Failed to compute balances")
		return
	}

	response.JSON(w, http.StatusOK, NewMemberSummaryResponse(summary))
}

// Stream handles GET /balances/groups/{groupId}/stream
// @Summary      Stream a group's balances
// @Description  Server-sent events. Sends the balances at once and again after every change to the group.
// @Tags         balances
// @Produce      text/event-stream
// @Param        X-Member-ID header string true "Acting member"
// @Param        groupId path string true "Group ID"
// @Param        include_settled query bool false "Count SETTLED expenses too"
// @Param        skip_inconsistent query bool false "Leave inconsistent entries out instead of failing"
// @Success      200 {object} GroupBalancesResponse
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /balances/groups/{groupId}/stream [get]
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.GetMemberID(r.Context())
	groupID := chi.URLParam(r, "groupId")
	q, err := parseQuery(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalError(w, "Streaming unsupported")
		return
	}

	// Subscribe before the first computation so no change slips between them
	sub := h.hub.Subscribe(groupID)
	defer sub.Close()

	balances, err := h.service.GroupBalances(r.Context(), groupID, actorID, q)
	if err != nil {
		writeError(w, err, "Failed to compute balances")
		return
	}

	done := h.metrics.StreamOpened()
	defer done()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "balances", NewGroupBalancesResponse(balances)); err != nil {
		return
	}
	flusher.Flush()

	changes := changefeed.Debounce(r.Context(), sub.C, h.debounce)
	for range changes {
		balances, err := h.service.GroupBalances(r.Context(), groupID, actorID, q)
		switch {
		case r.Context().Err() != nil:
			return
		case errors.Is(err, ErrNotGroupMember), errors.Is(err, ErrGroupNotFound):
			writeEvent(w, "closed", map[string]string{"reason": err.Error()})
			flusher.Flush()
			return
		case err != nil:
			slog.Warn("balance stream recompute failed", "group_id", groupID, "error", err)
			if err := writeEvent(w, "error", map[string]string{"message": err.Error()}); err != nil {
				return
			}
		default:
			if err := writeEvent(w, "balances", NewGroupBalancesResponse(balances)); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
