package common

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/ternarybob/orbital/internal/models"
)

// NewOrderID derives the deterministic order identifier from the submission
// parameters. Identical parameters always hash to the same id, which is what
// makes resubmission of an identical order a no-op at admission time.
func NewOrderID(workflowID string, reference models.InputProductReference, options map[string]interface{}, traceEnabled bool) string {
	type keyValue struct {
		Key   string      `json:"k"`
		Value interface{} `json:"v"`
	}
	sorted := make([]keyValue, 0, len(options))
	for k, v := range options {
		sorted = append(sorted, keyValue{Key: k, Value: v})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	payload := struct {
		WorkflowID   string                       `json:"workflow_id"`
		Reference    models.InputProductReference `json:"reference"`
		Options      []keyValue                   `json:"options"`
		TraceEnabled bool                         `json:"trace_enabled"`
	}{workflowID, reference, sorted, traceEnabled}

	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:32]
}
