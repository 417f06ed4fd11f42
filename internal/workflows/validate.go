package workflows

import (
	"fmt"

	"github.com/ternarybob/orbital/internal/models"
)

// validateDescriptor applies the registration checks in a fixed order. The
// first failure rejects the descriptor; the remaining descriptors are still
// registered.
func validateDescriptor(d *models.WorkflowDescriptor) error {
	if err := checkMandatoryFields(d); err != nil {
		return err
	}
	if !KnownProductType(d.InputProductType) {
		return fmt.Errorf("workflow %q: input product type %q is not a recognized mission/product-type code",
			d.ID, d.InputProductType)
	}
	for i := range d.Options {
		opt := &d.Options[i]
		if opt.Description == "" || opt.Type == "" {
			return fmt.Errorf("workflow %q: option %q must declare description and type", d.ID, opt.Name)
		}
		if !recognizedType(opt.Type) {
			return fmt.Errorf("workflow %q: option %q has unrecognized type %q", d.ID, opt.Name, opt.Type)
		}
		if opt.Default != nil && !ValueConformsToType(opt.Default, opt.Type) {
			return fmt.Errorf("workflow %q: option %q default %v is not a %s", d.ID, opt.Name, opt.Default, opt.Type)
		}
		for _, member := range opt.Enum {
			if !ValueConformsToType(member, opt.Type) {
				return fmt.Errorf("workflow %q: option %q enum member %v is not a %s", d.ID, opt.Name, member, opt.Type)
			}
		}
	}
	return nil
}

func checkMandatoryFields(d *models.WorkflowDescriptor) error {
	missing := []string{}
	if d.ID == "" {
		missing = append(missing, "Id")
	}
	if d.Name == "" {
		missing = append(missing, "Name")
	}
	if d.Description == "" {
		missing = append(missing, "Description")
	}
	if d.Execute == nil {
		missing = append(missing, "Execute")
	}
	if d.InputProductType == "" {
		missing = append(missing, "InputProductType")
	}
	if d.OutputProductType == "" {
		missing = append(missing, "OutputProductType")
	}
	if d.Version == "" {
		missing = append(missing, "WorkflowVersion")
	}
	if d.Options == nil {
		missing = append(missing, "WorkflowOptions")
	}
	if len(missing) > 0 {
		return fmt.Errorf("workflow %q: mandatory fields are missing: %v", d.ID, missing)
	}
	return nil
}

func recognizedType(t models.OptionType) bool {
	switch t {
	case models.OptionTypeBoolean, models.OptionTypeInteger, models.OptionTypeNumber, models.OptionTypeString:
		return true
	}
	return false
}

// ValueConformsToType reports whether a decoded JSON/YAML value is an
// instance of the declared option type. Integers decoded as float64 are
// accepted for integer options when they carry no fractional part.
func ValueConformsToType(value interface{}, t models.OptionType) bool {
	switch t {
	case models.OptionTypeBoolean:
		_, ok := value.(bool)
		return ok
	case models.OptionTypeString:
		_, ok := value.(string)
		return ok
	case models.OptionTypeInteger:
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case models.OptionTypeNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	}
	return false
}

// FillWithDefaults completes the submitted options with the declared
// defaults and fails when a mandatory option (one with no default) is
// missing. The submitted options are assumed to already be validated
// against the declarations.
func FillWithDefaults(submitted map[string]interface{}, declared []models.WorkflowOption) (map[string]interface{}, error) {
	filled := make(map[string]interface{}, len(declared))
	missing := []string{}
	for _, opt := range declared {
		if v, ok := submitted[opt.Name]; ok {
			filled[opt.Name] = v
			continue
		}
		if opt.Default != nil {
			filled[opt.Name] = opt.Default
			continue
		}
		missing = append(missing, opt.Name)
	}
	if len(missing) > 0 {
		return nil, &RequestError{Message: fmt.Sprintf(
			"the following mandatory options are missing: %v", missing)}
	}
	return filled, nil
}

// ValidateOptions checks the submitted options against the workflow
// declarations: unknown names, wrong types and disallowed enum values are
// rejected.
func ValidateOptions(workflowID string, submitted map[string]interface{}, declared []models.WorkflowOption) error {
	names := make(map[string]*models.WorkflowOption, len(declared))
	possible := make([]string, 0, len(declared))
	for i := range declared {
		names[declared[i].Name] = &declared[i]
		possible = append(possible, declared[i].Name)
	}
	for key := range submitted {
		if _, ok := names[key]; !ok {
			return &RequestError{Message: fmt.Sprintf(
				"%q is an unknown option for workflow %q, possible options are %v", key, workflowID, possible)}
		}
	}
	for key, value := range submitted {
		opt := names[key]
		if !ValueConformsToType(value, opt.Type) {
			return &RequestError{Message: fmt.Sprintf(
				"wrong type for option %q: expected %s, got %v", key, opt.Type, value)}
		}
		if len(opt.Enum) == 0 {
			continue
		}
		allowed := false
		for _, member := range opt.Enum {
			if equalOptionValue(member, value) {
				allowed = true
				break
			}
		}
		if !allowed {
			return &RequestError{Message: fmt.Sprintf(
				"disallowed value for option %q: %v provided while possible values are %v", key, value, opt.Enum)}
		}
	}
	return nil
}

// equalOptionValue compares option values across the numeric representations
// JSON and YAML decoding can produce.
func equalOptionValue(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
