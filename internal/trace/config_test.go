package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
service_url: https://trace.example.com
url_access_token: https://trace.example.com/token
url_push_trace: https://trace.example.com/traces
username: producer
password: secret
key_fingerprint: ABCDEF
passphrase: hunter2
service_context: Sentinel-2 L1C to L2A
service_provider: Orbital
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "traceability_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadConfiguration_Defaults(t *testing.T) {
	cfg, err := ReadConfiguration(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "Production", cfg.ServiceType)
	assert.Equal(t, "CREATE", cfg.EventType)
	assert.Equal(t, "producer", cfg.Username)
}

func TestReadConfiguration_MissingMandatoryField(t *testing.T) {
	// service_provider omitted
	broken := `
service_url: https://trace.example.com
url_access_token: https://trace.example.com/token
url_push_trace: https://trace.example.com/traces
username: producer
password: secret
key_fingerprint: ABCDEF
passphrase: hunter2
service_context: ctx
`
	_, err := ReadConfiguration(writeConfig(t, broken))
	var configErr *ConfigurationError
	assert.ErrorAs(t, err, &configErr)
}

func TestReadConfiguration_MissingFile(t *testing.T) {
	_, err := ReadConfiguration(filepath.Join(t.TempDir(), "absent.yaml"))
	var configErr *ConfigurationError
	assert.ErrorAs(t, err, &configErr)
}
