package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

const tracetoolJar = "tracetool-1.2.4.jar"

// Trace builds, signs and pushes one provenance record. The typical flow is
// New -> Hash -> UpdateAttributes -> Sign -> Push; the JSON file stays on
// disk when the push fails so it can be recovered manually.
type Trace struct {
	config     *Configuration
	configDir  string
	tracePath  string
	content    map[string]interface{}
	signed     bool
	httpClient *http.Client
	logger     arbor.ILogger
}

// New initialises a trace file at tracePath from the configuration stored in
// configDir (the tracetool jar and signing key live alongside it).
func New(configPath, tracePath string, logger arbor.ILogger) (*Trace, error) {
	config, err := ReadConfiguration(configPath)
	if err != nil {
		return nil, err
	}

	t := &Trace{
		config:     config,
		configDir:  filepath.Dir(configPath),
		tracePath:  tracePath,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		content: map[string]interface{}{
			"beginningDateTime": "",
			"eventType":         config.EventType,
			"platformShortName": "",
			"processorName":     "",
			"processorVersion":  "",
			"productType":       "",
			"serviceContext":    config.ServiceContext,
			"serviceProvider":   config.ServiceProvider,
			"serviceType":       config.ServiceType,
		},
	}
	if err := t.save(); err != nil {
		return nil, err
	}
	return t, nil
}

// Path returns the location of the trace JSON file.
func (t *Trace) Path() string {
	return t.tracePath
}

func (t *Trace) save() error {
	data, err := json.MarshalIndent(t.content, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to serialize trace: %w", err)
	}
	if err := os.WriteFile(t.tracePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write trace file: %w", err)
	}
	return nil
}

func (t *Trace) tracetool(args ...string) ([]byte, error) {
	jar := filepath.Join(t.configDir, tracetoolJar)
	cmd := exec.Command("java", append([]string{"-jar", jar}, args...)...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("tracetool invocation failed: %w", err)
	}
	return output, nil
}

// Hash computes the product hash and hash list into the trace via the
// external trace tool.
func (t *Trace) Hash(productPath string) error {
	output, err := t.tracetool("--hash", productPath, t.tracePath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(output, &t.content); err != nil {
		return fmt.Errorf("tracetool returned invalid trace content: %w", err)
	}
	return t.save()
}

// UpdateAttributes sets existing trace attributes. Names must already be
// present and value types must match; a signed trace can no longer change.
func (t *Trace) UpdateAttributes(attributes map[string]interface{}) error {
	if t.signed {
		return fmt.Errorf("trace is already signed, it can not be modified")
	}
	for attr, val := range attributes {
		current, ok := t.content[attr]
		if !ok {
			return fmt.Errorf("attribute %q is not present in the trace", attr)
		}
		if current != nil && fmt.Sprintf("%T", current) != fmt.Sprintf("%T", val) {
			return fmt.Errorf("invalid type for attribute %q: required %T, given %T", attr, current, val)
		}
		t.content[attr] = val
	}
	return t.save()
}

// Sign signs the trace with the configured TS Data Producer key.
func (t *Trace) Sign() error {
	output, err := t.tracetool("--sign", t.config.KeyFingerprint, t.config.Passphrase, t.tracePath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(output, &t.content); err != nil {
		return fmt.Errorf("tracetool returned invalid signed trace: %w", err)
	}
	t.signed = true
	return t.save()
}

// fetchAccessToken authenticates against the traceability service.
func (t *Trace) fetchAccessToken() (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", t.config.Username)
	form.Set("password", t.config.Password)

	req, err := http.NewRequest(http.MethodPost, t.config.URLAccessToken, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("trace-api", "")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	return payload.AccessToken, nil
}

// Push uploads the signed trace to the traceability service and deletes the
// local file on success.
func (t *Trace) Push() error {
	token, err := t.fetchAccessToken()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(t.tracePath)
	if err != nil {
		return fmt.Errorf("failed to read trace file: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, t.config.URLPushTrace, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("trace push failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("trace push returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := os.Remove(t.tracePath); err != nil {
		t.logger.Warn().Err(err).Str("trace_path", t.tracePath).Msg("Failed to remove pushed trace file")
	}
	return nil
}
