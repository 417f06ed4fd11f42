package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/models"
)

func writeFiles(t *testing.T, esaTF, roles string) *Service {
	t.Helper()
	dir := t.TempDir()
	esaTFFile := filepath.Join(dir, "esa_tf.config")
	rolesFile := filepath.Join(dir, "roles.yaml")
	require.NoError(t, os.WriteFile(esaTFFile, []byte(esaTF), 0644))
	require.NoError(t, os.WriteFile(rolesFile, []byte(roles), 0644))
	return NewService(esaTFFile, rolesFile, arbor.NewLogger())
}

const rolesYAML = `
default_role:
  quota: 2
  profile: user
roles:
  guest:
    quota: 1
    profile: user
  power:
    quota: 8
    profile: user
  admin:
    quota: 10
    profile: manager
  blocked:
    quota: 0
    profile: unauthorized
`

func TestRead_DefaultsApplied(t *testing.T) {
	svc := writeFiles(t, "{}\n", rolesYAML)

	cfg, err := svc.Read()
	require.NoError(t, err)

	assert.Equal(t, 14400, cfg.KeepingPeriod)
	assert.True(t, cfg.EnableQuotaCheck)
	assert.True(t, cfg.EnableMonitoring)
	assert.Equal(t, 10, cfg.MonitoringPollingTimeS)
	assert.False(t, cfg.EnableTraceability)
	assert.Equal(t, 2, cfg.DefaultRole.Quota)
}

func TestRead_OverridesFromFile(t *testing.T) {
	svc := writeFiles(t, `
keeping_period: 10
excluded_workflows: [eopf_convert_to_zarr]
enable_traceability: true
untraced_workflows: [sen2cor_l1c_l2a]
monitoring_polling_time_s: 20
`, rolesYAML)

	cfg, err := svc.Read()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.KeepingPeriod)
	assert.True(t, cfg.WorkflowExcluded("eopf_convert_to_zarr"))
	assert.False(t, cfg.WorkflowExcluded("sen2cor_l1c_l2a"))
	assert.True(t, cfg.WorkflowUntraced("sen2cor_l1c_l2a"))
	assert.True(t, cfg.EnableTraceability)
	assert.Equal(t, 20, cfg.MonitoringPollingTimeS)
}

func TestRead_MissingDefaultRoleIsFatal(t *testing.T) {
	svc := writeFiles(t, "{}\n", "roles:\n  guest:\n    quota: 1\n    profile: user\n")

	_, err := svc.Read()
	var configErr *ConfigurationError
	require.ErrorAs(t, err, &configErr)
	assert.Contains(t, err.Error(), "default_role")
}

func TestRead_MissingFileIsFatal(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "absent"), filepath.Join(t.TempDir(), "absent"), arbor.NewLogger())
	_, err := svc.Read()
	var configErr *ConfigurationError
	assert.ErrorAs(t, err, &configErr)
}

func TestRead_MalformedYAMLIsFatal(t *testing.T) {
	svc := writeFiles(t, ":\n  - not yaml: [", rolesYAML)
	_, err := svc.Read()
	var configErr *ConfigurationError
	assert.ErrorAs(t, err, &configErr)
}

func TestQuota_MaxOverMappedRoles(t *testing.T) {
	svc := writeFiles(t, "{}\n", rolesYAML)
	cfg, err := svc.Read()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Quota([]string{"guest", "power"}, arbor.NewLogger()))
	// Unknown roles are skipped; nothing mapped falls back to the default.
	assert.Equal(t, 2, cfg.Quota([]string{"mystery"}, arbor.NewLogger()))
	assert.Equal(t, 2, cfg.Quota(nil, arbor.NewLogger()))
	// A known role with quota 0 maps, it does not fall through.
	assert.Equal(t, 0, cfg.Quota([]string{"blocked"}, arbor.NewLogger()))
}

func TestProfile_Resolution(t *testing.T) {
	svc := writeFiles(t, "{}\n", rolesYAML)
	cfg, err := svc.Read()
	require.NoError(t, err)

	assert.Equal(t, models.ProfileManager, cfg.Profile([]string{"guest", "admin"}))
	assert.Equal(t, models.ProfileUser, cfg.Profile([]string{"guest"}))
	assert.Equal(t, models.ProfileUser, cfg.Profile(nil)) // default role profile
	assert.Equal(t, models.ProfileUnauthorized, cfg.Profile([]string{"blocked"}))
}

func TestRead_ReloadsOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	esaTFFile := filepath.Join(dir, "esa_tf.config")
	rolesFile := filepath.Join(dir, "roles.yaml")
	require.NoError(t, os.WriteFile(esaTFFile, []byte("keeping_period: 10\n"), 0644))
	require.NoError(t, os.WriteFile(rolesFile, []byte(rolesYAML), 0644))

	svc := NewService(esaTFFile, rolesFile, arbor.NewLogger())
	cfg, err := svc.Read()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.KeepingPeriod)

	// Rewrite with a changed value and a changed mtime, then expire the TTL
	// window by backdating the cached check.
	require.NoError(t, os.WriteFile(esaTFFile, []byte("keeping_period: 99\n"), 0644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(esaTFFile, future, future))
	svc.mu.Lock()
	for _, cached := range svc.files {
		cached.checkedAt = time.Time{}
	}
	svc.mu.Unlock()

	cfg, err = svc.Read()
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.KeepingPeriod)
}
