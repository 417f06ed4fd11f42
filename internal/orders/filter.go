package orders

import (
	"fmt"
	"time"

	"github.com/ternarybob/orbital/internal/models"
)

// Filter is one (field, op, value) predicate of an orders query. Filters
// compose by conjunction.
type Filter struct {
	Field string
	Op    string
	Value string
}

// allowedFilterOps lists the operators each queryable field accepts.
var allowedFilterOps = map[string]map[string]bool{
	"Id":                    {"eq": true},
	"SubmissionDate":        {"eq": true, "lt": true, "le": true, "gt": true, "ge": true},
	"CompletedDate":         {"eq": true, "lt": true, "le": true, "gt": true, "ge": true},
	"WorkflowId":            {"eq": true},
	"Status":                {"eq": true},
	"InputProductReference": {"eq": true},
}

// isoLayouts are the timestamp renderings accepted in date literals.
var isoLayouts = []string{
	"2006-01-02T15:04:05.000000",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseISO(value string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("malformed ISO-8601 timestamp %q", value)
}

// Validate checks the field/op pair and, for date fields, the literal.
func (f Filter) Validate() error {
	ops, ok := allowedFilterOps[f.Field]
	if !ok {
		return &RequestError{Message: fmt.Sprintf("filtering on %q is not supported", f.Field)}
	}
	if !ops[f.Op] {
		return &RequestError{Message: fmt.Sprintf("operator %q is not supported for field %q", f.Op, f.Field)}
	}
	if f.Field == "SubmissionDate" || f.Field == "CompletedDate" {
		if _, err := parseISO(f.Value); err != nil {
			return &RequestError{Message: err.Error()}
		}
	}
	return nil
}

// matches evaluates the predicate against one order view. Orders lacking a
// CompletedDate are excluded by any CompletedDate predicate.
func (f Filter) matches(info models.OrderInfo) (bool, error) {
	switch f.Field {
	case "Id":
		return info.ID == f.Value, nil
	case "WorkflowId":
		return info.WorkflowID == f.Value, nil
	case "Status":
		return string(info.Status) == f.Value, nil
	case "InputProductReference":
		return info.InputProductReference.Reference == f.Value, nil
	case "SubmissionDate":
		return f.compareDates(info.SubmissionDate)
	case "CompletedDate":
		if info.CompletedDate == "" {
			return false, nil
		}
		return f.compareDates(info.CompletedDate)
	}
	return false, &RequestError{Message: fmt.Sprintf("filtering on %q is not supported", f.Field)}
}

func (f Filter) compareDates(orderValue string) (bool, error) {
	if orderValue == "" {
		return false, nil
	}
	left, err := parseISO(orderValue)
	if err != nil {
		return false, err
	}
	right, err := parseISO(f.Value)
	if err != nil {
		return false, &RequestError{Message: err.Error()}
	}
	switch f.Op {
	case "eq":
		return left.Equal(right), nil
	case "lt":
		return left.Before(right), nil
	case "le":
		return left.Before(right) || left.Equal(right), nil
	case "gt":
		return left.After(right), nil
	case "ge":
		return left.After(right) || left.Equal(right), nil
	}
	return false, &RequestError{Message: fmt.Sprintf("operator %q is not supported for field %q", f.Op, f.Field)}
}
