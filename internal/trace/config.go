package trace

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Configuration holds the traceability-service settings. All fields are
// mandatory unless defaulted; the file is validated on every read so
// operator edits surface immediately.
type Configuration struct {
	ServiceURL      string `yaml:"service_url" validate:"required,url"`
	URLAccessToken  string `yaml:"url_access_token" validate:"required,url"`
	URLPushTrace    string `yaml:"url_push_trace" validate:"required,url"`
	Username        string `yaml:"username" validate:"required"`
	Password        string `yaml:"password" validate:"required"`
	KeyFingerprint  string `yaml:"key_fingerprint" validate:"required"`
	Passphrase      string `yaml:"passphrase" validate:"required"`
	ServiceContext  string `yaml:"service_context" validate:"required"`
	ServiceType     string `yaml:"service_type"`
	ServiceProvider string `yaml:"service_provider" validate:"required"`
	EventType       string `yaml:"event_type"`
}

// ConfigurationError marks an unusable traceability configuration file.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

var validate = validator.New()

// ReadConfiguration reads and validates the traceability configuration file.
func ReadConfiguration(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("traceability configuration: %v", err)}
	}

	config := &Configuration{
		ServiceType: "Production",
		EventType:   "CREATE",
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("invalid traceability configuration file %s: %v", path, err)}
	}
	if err := validate.Struct(config); err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("invalid traceability configuration file %s: %v", path, err)}
	}
	return config, nil
}
