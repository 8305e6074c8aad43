package audit

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/expensesplitter/pkg/response"
)

// Handler serves the audit trail over HTTP
type Handler struct {
	logger Logger
}

// NewHandler creates a new audit handler
func NewHandler(logger Logger) *Handler {
	return &Handler{logger: logger}
}

// Routes returns the router for audit endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/groups/{groupId}", h.ListByGroup)
	r.Get("/{entityType}/{entityId}", h.ListByEntity)

	return r
}

// ListByEntity handles GET /audit/{entityType}/{entityId}
// @Summary      Audit trail of an entity
// @Description  Every recorded change to a user, group, expense or settlement, oldest first
// @Tags         audit
// @Produce      json
// @Param        entityType path string true "USER, GROUP, EXPENSE or SETTLEMENT"
// @Param        entityId path string true "Entity ID"
// @Success      200 {object} response.APIResponse{data=[]Event}
// @Failure      400 {object} response.APIResponse
// @Router       /audit/{entityType}/{entityId} [get]
func (h *Handler) ListByEntity(w http.ResponseWriter, r *http.Request) {
	entityType := EntityType(strings.ToUpper(chi.URLParam(r, "entityType")))
	switch entityType {
	case EntityUser, EntityGroup, EntityExpense, EntitySettlement:
	default:
		response.BadRequest(w, "Invalid entity type")
		return
	}

	events, err := h.logger.ListByEntity(r.Context(), entityType, chi.URLParam(r, "entityId"))
	if err != nil {
		response.InternalError(w, "Failed to list audit events")
		return
	}

	response.JSON(w, http.StatusOK, events)
}

// ListByGroup handles GET /audit/groups/{groupId}
// @Summary      Recent activity of a group
// @Tags         audit
// @Produce      json
// @Param        groupId path string true "Group ID"
// @Param        limit query int false "Maximum events" default(50)
// @Success      200 {object} response.APIResponse{data=[]Event}
// @Router       /audit/groups/{groupId} [get]
func (h *Handler) ListByGroup(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	events, err := h.logger.ListByGroup(r.Context(), chi.URLParam(r, "groupId"), limit)
	if err != nil {
		response.InternalError(w, "Failed to list audit events")
		return
	}

	response.JSON(w, http.StatusOK, events)
}
