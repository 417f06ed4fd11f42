// -----------------------------------------------------------------------
// Last Modified: Tuesday, 21st April 2026 9:03:11 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/models"
	"gopkg.in/yaml.v3"
)

// cacheTTL bounds how often the config file mtimes are re-checked.
const cacheTTL = 10 * time.Second

// ConfigurationError marks a malformed or incomplete service configuration.
// It is fatal at startup and surfaces as 500 when observed at request time.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// ServiceConfig is the operator-editable behaviour of the order service,
// read from the esa_tf config file and the roles file on every use.
type ServiceConfig struct {
	KeepingPeriod          int      `yaml:"keeping_period"`
	ExcludedWorkflows      []string `yaml:"excluded_workflows"`
	EnableTraceability     bool     `yaml:"enable_traceability"`
	EnableAuthorizationCheck bool   `yaml:"enable_authorization_check"`
	EnableQuotaCheck       bool     `yaml:"enable_quota_check"`
	UntracedWorkflows      []string `yaml:"untraced_workflows"`
	EnableMonitoring       bool     `yaml:"enable_monitoring"`
	MonitoringPollingTimeS int      `yaml:"monitoring_polling_time_s"`

	DefaultRole models.Role            `yaml:"-"`
	Roles       map[string]models.Role `yaml:"-"`
}

// rolesFile is the shape of the roles YAML file. A missing default_role is a
// fatal configuration error.
type rolesFile struct {
	DefaultRole *models.Role           `yaml:"default_role"`
	Roles       map[string]models.Role `yaml:"roles"`
}

type cachedFile struct {
	mtime     time.Time
	checkedAt time.Time
	raw       []byte
}

// Service reads the esa_tf and roles configuration files through an
// mtime-keyed TTL cache, so operator edits take effect without a restart.
type Service struct {
	esaTFFile string
	rolesFile string
	logger    arbor.ILogger

	mu    sync.Mutex
	files map[string]*cachedFile
}

// NewService creates a reader over the two configuration files.
func NewService(esaTFFile, rolesFile string, logger arbor.ILogger) *Service {
	return &Service{
		esaTFFile: esaTFFile,
		rolesFile: rolesFile,
		logger:    logger,
		files:     map[string]*cachedFile{},
	}
}

// read returns the file contents, re-reading from disk only when the TTL
// expired and the mtime changed.
func (s *Service) read(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, ok := s.files[path]
	now := time.Now()
	if ok && now.Sub(cached.checkedAt) < cacheTTL {
		return cached.raw, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("configuration file %s: %v", path, err)}
	}
	if ok && info.ModTime().Equal(cached.mtime) {
		cached.checkedAt = now
		return cached.raw, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("configuration file %s: %v", path, err)}
	}
	s.files[path] = &cachedFile{mtime: info.ModTime(), checkedAt: now, raw: raw}
	return raw, nil
}

// Read loads, merges and validates the service configuration.
func (s *Service) Read() (*ServiceConfig, error) {
	raw, err := s.read(s.esaTFFile)
	if err != nil {
		return nil, err
	}

	config := &ServiceConfig{
		KeepingPeriod:            14400,
		EnableAuthorizationCheck: true,
		EnableQuotaCheck:         true,
		EnableMonitoring:         true,
		MonitoringPollingTimeS:   10,
	}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("invalid configuration file %s: %v", s.esaTFFile, err)}
	}

	rolesRaw, err := s.read(s.rolesFile)
	if err != nil {
		return nil, err
	}
	var roles rolesFile
	if err := yaml.Unmarshal(rolesRaw, &roles); err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("invalid roles file %s: %v", s.rolesFile, err)}
	}
	if roles.DefaultRole == nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("roles file %s: default_role is mandatory", s.rolesFile)}
	}
	config.DefaultRole = *roles.DefaultRole
	config.Roles = roles.Roles

	return config, nil
}

// WorkflowExcluded reports whether workflowID is disabled for submission.
func (c *ServiceConfig) WorkflowExcluded(workflowID string) bool {
	for _, id := range c.ExcludedWorkflows {
		if id == workflowID {
			return true
		}
	}
	return false
}

// WorkflowUntraced reports whether trace pushing is disabled for workflowID.
func (c *ServiceConfig) WorkflowUntraced(workflowID string) bool {
	for _, id := range c.UntracedWorkflows {
		if id == workflowID {
			return true
		}
	}
	return false
}

// Profile resolves the caller's profile from its roles: manager wins over
// user, unknown roles fall back to the default role's profile.
func (c *ServiceConfig) Profile(userRoles []string) models.Profile {
	profile := models.Profile("")
	for _, roleName := range userRoles {
		role, ok := c.Roles[roleName]
		if !ok {
			continue
		}
		if role.Profile == models.ProfileManager {
			return models.ProfileManager
		}
		if profile == "" {
			profile = role.Profile
		}
	}
	if profile == "" {
		return c.DefaultRole.Profile
	}
	return profile
}

// Quota resolves the caller's quota as the maximum over its mapped roles;
// unknown roles are skipped with a warning, no mapped role falls back to the
// default role.
func (c *ServiceConfig) Quota(userRoles []string, logger arbor.ILogger) int {
	quota := -1
	for _, roleName := range userRoles {
		role, ok := c.Roles[roleName]
		if !ok {
			if logger != nil && roleName != "" {
				logger.Warn().Str("role", roleName).Msg("Unknown role in user roles, skipping")
			}
			continue
		}
		if role.Quota > quota {
			quota = role.Quota
		}
	}
	if quota < 0 {
		return c.DefaultRole.Quota
	}
	return quota
}
