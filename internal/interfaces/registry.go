package interfaces

import (
	"github.com/ternarybob/orbital/internal/models"
)

// WorkflowRegistry exposes read-only lookup over the workflow descriptors
// discovered at startup.
type WorkflowRegistry interface {
	// All returns every registered descriptor keyed by id.
	All() map[string]*models.WorkflowDescriptor

	// ByID returns the descriptor for id or an error satisfying
	// errors.Is(err, ErrWorkflowNotFound).
	ByID(id string) (*models.WorkflowDescriptor, error)

	// Filter returns the descriptors whose InputProductType equals
	// productType; an empty productType returns everything.
	Filter(productType string) map[string]*models.WorkflowDescriptor
}
