package handlers

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/interfaces"
)

// WorkflowHandler exposes the plugin registry contents. The execute
// reference never leaves the process; descriptors serialize without it.
type WorkflowHandler struct {
	registry interfaces.WorkflowRegistry
	logger   arbor.ILogger
}

// NewWorkflowHandler creates a WorkflowHandler.
func NewWorkflowHandler(registry interfaces.WorkflowRegistry, logger arbor.ILogger) *WorkflowHandler {
	return &WorkflowHandler{registry: registry, logger: logger}
}

// ListHandler handles GET /Workflows with an optional product type filter.
func (h *WorkflowHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	user := UserFromRequest(r)
	h.logger.Info().Str("user_id", user.Username).Msg("Workflow configurations requested")

	workflows := h.registry.Filter(r.URL.Query().Get("product_type"))

	ids := make([]string, 0, len(workflows))
	for id := range workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	value := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		value = append(value, workflows[id])
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"value": value})
}

// GetHandler handles GET /Workflows('<id>').
func (h *WorkflowHandler) GetHandler(w http.ResponseWriter, r *http.Request, workflowID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	user := UserFromRequest(r)
	h.logger.Info().
		Str("user_id", user.Username).
		Str("workflow_id", workflowID).
		Msg("Workflow configuration requested")

	workflow, err := h.registry.ByID(workflowID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	response := map[string]interface{}{
		"@odata.id": fmt.Sprintf("%s/Workflows('%s')", requestRoot(r), workflowID),
	}
	mergeJSON(response, workflow)
	WriteJSON(w, http.StatusOK, response)
}
