// -----------------------------------------------------------------------
// Last Modified: Friday, 24th April 2026 10:18:02 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/models"
	"github.com/ternarybob/orbital/internal/orders"
)

// OrderHandler serves the TransformationOrders OData surface.
type OrderHandler struct {
	service *orders.Service
	logger  arbor.ILogger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(service *orders.Service, logger arbor.ILogger) *OrderHandler {
	return &OrderHandler{service: service, logger: logger}
}

// CreateHandler handles POST /TransformationOrders. Responds 201 with the
// Location header pointing at the order resource.
func (h *OrderHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	user := UserFromRequest(r)

	var req models.SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.WorkflowID == "" || req.InputProductReference.Reference == "" {
		WriteError(w, http.StatusUnprocessableEntity, "WorkflowId and InputProductReference.Reference are mandatory")
		return
	}

	h.logger.Info().
		Str("user_id", user.Username).
		Str("workflow_id", req.WorkflowID).
		Msg("Transformation order requested")

	info, err := h.service.SubmitWorkflow(req, user)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/TransformationOrders('%s')", requestRoot(r), info.ID))
	WriteJSON(w, http.StatusCreated, info)
}

// ListHandler handles GET /TransformationOrders with $filter and $count.
func (h *OrderHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// AdminListHandler handles GET /admin/TransformationOrders: the unfiltered
// queue view, manager profile required.
func (h *OrderHandler) AdminListHandler(w http.ResponseWriter, r *http.Request) {
	user := UserFromRequest(r)
	profile, err := h.service.Profile(user)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if profile != models.ProfileManager {
		WriteError(w, http.StatusForbidden, "resource is forbidden")
		return
	}
	h.list(w, r, true)
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request, unrestricted bool) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	user := UserFromRequest(r)

	filters, err := ParseFilter(r.URL.Query().Get("$filter"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	withCount := r.URL.Query().Get("$count") == "true"

	h.logger.Info().
		Str("user_id", user.Username).
		Int("filters", len(filters)).
		Msg("Transformation orders list requested")

	results, err := h.service.GetOrders(filters, user, unrestricted)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	response := map[string]interface{}{"value": results}
	if withCount {
		response["odata.count"] = len(results)
	}
	WriteJSON(w, http.StatusOK, response)
}

// CountHandler handles GET /TransformationOrders/$count.
func (h *OrderHandler) CountHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	user := UserFromRequest(r)
	results, err := h.service.GetOrders(nil, user, false)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, len(results))
}

// GetHandler handles GET /TransformationOrders('<id>').
func (h *OrderHandler) GetHandler(w http.ResponseWriter, r *http.Request, orderID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	user := UserFromRequest(r)
	h.logger.Info().
		Str("user_id", user.Username).
		Str("order_id", orderID).
		Msg("Transformation order info requested")

	info, err := h.service.GetOrder(orderID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	response := map[string]interface{}{
		"@odata.id": fmt.Sprintf("%s/TransformationOrders('%s')", requestRoot(r), orderID),
	}
	mergeJSON(response, info)
	WriteJSON(w, http.StatusOK, response)
}

// LogHandler handles GET /TransformationOrders('<id>')/Log.
func (h *OrderHandler) LogHandler(w http.ResponseWriter, r *http.Request, orderID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	user := UserFromRequest(r)
	h.logger.Info().
		Str("user_id", user.Username).
		Str("order_id", orderID).
		Msg("Transformation order log requested")

	entries, err := h.service.GetOrderLog(r.Context(), orderID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	messages := make([]string, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, entry.Message)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"value": messages})
}

// LogValueHandler handles GET /TransformationOrders('<id>')/Log/$value,
// returning the raw newline-joined log text.
func (h *OrderHandler) LogValueHandler(w http.ResponseWriter, r *http.Request, orderID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	entries, err := h.service.GetOrderLog(r.Context(), orderID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	messages := make([]string, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, entry.Message)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(strings.Join(messages, "\n")))
}

// mergeJSON flattens a serializable value into an annotated response map.
func mergeJSON(response map[string]interface{}, value interface{}) {
	data, _ := json.Marshal(value)
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return
	}
	for k, v := range fields {
		response[k] = v
	}
}

// requestRoot rebuilds the externally visible URL root of the request.
func requestRoot(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}
