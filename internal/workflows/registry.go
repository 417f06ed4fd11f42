// -----------------------------------------------------------------------
// Last Modified: Wednesday, 15th April 2026 9:21:17 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package workflows

import (
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/models"
)

// Registry holds the workflow descriptors discovered at startup. It is
// populated once and read-only afterwards.
type Registry struct {
	workflows map[string]*models.WorkflowDescriptor
	logger    arbor.ILogger
}

// NewRegistry validates and registers the given descriptors. A descriptor
// failing validation is skipped with a warning; the rest are kept. Duplicate
// ids keep the entry with the lexicographically smallest source so the
// choice is stable across restarts.
func NewRegistry(logger arbor.ILogger, descriptors ...*models.WorkflowDescriptor) *Registry {
	// Stable duplicate resolution: order candidates by source first.
	sorted := make([]*models.WorkflowDescriptor, len(descriptors))
	copy(sorted, descriptors)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Source < sorted[j].Source })

	registered := make(map[string]*models.WorkflowDescriptor, len(sorted))
	for _, d := range sorted {
		if existing, ok := registered[d.ID]; ok {
			logger.Warn().
				Str("workflow_id", d.ID).
				Str("kept", existing.Source).
				Str("dropped", d.Source).
				Msg("Duplicate workflow id, keeping first by source")
			continue
		}
		if err := validateDescriptor(d); err != nil {
			logger.Warn().Err(err).Str("source", d.Source).Msg("Workflow descriptor rejected")
			continue
		}
		registered[d.ID] = d
		logger.Info().
			Str("workflow_id", d.ID).
			Str("input_product_type", d.InputProductType).
			Str("version", d.Version).
			Msg("Workflow registered")
	}

	return &Registry{workflows: registered, logger: logger}
}

// All returns every registered descriptor keyed by id.
func (r *Registry) All() map[string]*models.WorkflowDescriptor {
	out := make(map[string]*models.WorkflowDescriptor, len(r.workflows))
	for id, d := range r.workflows {
		out[id] = d
	}
	return out
}

// ByID returns the descriptor for id.
func (r *Registry) ByID(id string) (*models.WorkflowDescriptor, error) {
	d, ok := r.workflows[id]
	if !ok {
		ids := make([]string, 0, len(r.workflows))
		for known := range r.workflows {
			ids = append(ids, known)
		}
		sort.Strings(ids)
		return nil, fmt.Errorf("workflow %q: %w, available workflows are %v", id, ErrWorkflowNotFound, ids)
	}
	return d, nil
}

// Filter returns the descriptors whose InputProductType equals productType.
func (r *Registry) Filter(productType string) map[string]*models.WorkflowDescriptor {
	if productType == "" {
		return r.All()
	}
	out := map[string]*models.WorkflowDescriptor{}
	for id, d := range r.workflows {
		if d.InputProductType == productType {
			out[id] = d
		}
	}
	return out
}
