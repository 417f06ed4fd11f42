package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/orbital/internal/models"
)

var testOptions = []models.WorkflowOption{
	{
		Name:        "Name1",
		Description: "first",
		Type:        models.OptionTypeString,
		Default:     "VALUE1",
		Enum:        []interface{}{"VALUE1", "VALUE2"},
	},
	{
		Name:        "Name2",
		Description: "second",
		Type:        models.OptionTypeInteger,
		Default:     1,
		Enum:        []interface{}{1, 2, 3, 4},
	},
	{
		Name:        "Name3",
		Description: "third",
		Type:        models.OptionTypeBoolean,
		Default:     true,
	},
	{
		Name:        "Name4",
		Description: "fourth",
		Type:        models.OptionTypeNumber,
	},
}

func TestFillWithDefaults(t *testing.T) {
	submitted := map[string]interface{}{"Name3": false, "Name4": 1.4}

	filled, err := FillWithDefaults(submitted, testOptions)
	require.NoError(t, err)

	assert.Equal(t, "VALUE1", filled["Name1"])
	assert.Equal(t, 1, filled["Name2"])
	assert.Equal(t, false, filled["Name3"])
	assert.Equal(t, 1.4, filled["Name4"])
}

func TestFillWithDefaults_MissingMandatory(t *testing.T) {
	// Name4 has no default, omitting it must fail.
	_, err := FillWithDefaults(map[string]interface{}{"Name3": false}, testOptions)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "missing")
	}
}

func TestValidateOptions_UnknownOption(t *testing.T) {
	err := ValidateOptions("wf", map[string]interface{}{"Bogus": 1}, testOptions)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "unknown option")
	}
}

func TestValidateOptions_WrongType(t *testing.T) {
	err := ValidateOptions("wf", map[string]interface{}{"Name1": 5}, testOptions)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "wrong type")
	}
}

func TestValidateOptions_DisallowedEnumValue(t *testing.T) {
	err := ValidateOptions("wf", map[string]interface{}{"Name1": "VALUE3"}, testOptions)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "disallowed value")
	}
}

func TestValidateOptions_JSONNumbers(t *testing.T) {
	// JSON decoding produces float64 for every number; integer options must
	// still accept whole values and reject fractions.
	assert.NoError(t, ValidateOptions("wf", map[string]interface{}{"Name2": float64(2)}, testOptions))
	assert.Error(t, ValidateOptions("wf", map[string]interface{}{"Name2": 2.5}, testOptions))
}

func TestValueConformsToType(t *testing.T) {
	assert.True(t, ValueConformsToType(true, models.OptionTypeBoolean))
	assert.True(t, ValueConformsToType("x", models.OptionTypeString))
	assert.True(t, ValueConformsToType(3, models.OptionTypeInteger))
	assert.True(t, ValueConformsToType(float64(3), models.OptionTypeInteger))
	assert.True(t, ValueConformsToType(3.5, models.OptionTypeNumber))
	assert.True(t, ValueConformsToType(3, models.OptionTypeNumber))

	assert.False(t, ValueConformsToType("x", models.OptionTypeBoolean))
	assert.False(t, ValueConformsToType(3.5, models.OptionTypeInteger))
	assert.False(t, ValueConformsToType(true, models.OptionTypeNumber))
	assert.False(t, ValueConformsToType(1, models.OptionTypeString))
}
