package hubs

import (
	"fmt"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/interfaces"
	"github.com/ternarybob/orbital/internal/models"
	"gopkg.in/yaml.v3"
)

// cacheTTL bounds how long a parsed hubs file is trusted before the mtime is
// checked again.
const cacheTTL = 10 * time.Second

// hubsFile preserves the order hubs appear in the YAML file, because the
// downloader tries them in configured order.
type hubsFile struct {
	order   []string
	entries map[string]models.HubConfig
}

// UnmarshalYAML decodes the top-level mapping keeping key order.
func (f *hubsFile) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("hubs configuration must be a mapping of hub name to settings")
	}
	f.entries = make(map[string]models.HubConfig, len(node.Content)/2)
	for i := 0; i < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var cfg models.HubConfig
		if err := node.Content[i+1].Decode(&cfg); err != nil {
			return fmt.Errorf("hub %q: %w", name, err)
		}
		f.order = append(f.order, name)
		f.entries[name] = cfg
	}
	return nil
}

// AdapterCache constructs hub adapters lazily from the credentials file and
// invalidates them when the file's mtime changes. Hubs removed from the file
// disappear from the cache on the next read; unchanged hubs keep their
// adapter instance so OAuth2 tokens survive refreshes.
type AdapterCache struct {
	file   string
	logger arbor.ILogger

	mu        sync.Mutex
	mtime     time.Time
	checkedAt time.Time
	order     []string
	configs   map[string]models.HubConfig
	adapters  map[string]interfaces.HubAdapter
}

// NewAdapterCache creates a cache over the given hubs credentials file.
func NewAdapterCache(file string, logger arbor.ILogger) *AdapterCache {
	return &AdapterCache{
		file:     file,
		logger:   logger,
		configs:  map[string]models.HubConfig{},
		adapters: map[string]interfaces.HubAdapter{},
	}
}

// Adapters returns the configured adapters in file order, refreshing from
// disk when the TTL expired and the file changed.
func (c *AdapterCache) Adapters() ([]interfaces.HubAdapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if len(c.adapters) > 0 && now.Sub(c.checkedAt) < cacheTTL {
		return c.ordered(), nil
	}

	info, err := os.Stat(c.file)
	if err != nil {
		return nil, fmt.Errorf("hubs credentials file: %w", err)
	}
	c.checkedAt = now
	if info.ModTime().Equal(c.mtime) && len(c.adapters) > 0 {
		return c.ordered(), nil
	}

	data, err := os.ReadFile(c.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read hubs credentials file: %w", err)
	}
	var parsed hubsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse hubs credentials file: %w", err)
	}

	// Drop hubs no longer configured.
	for name := range c.adapters {
		if _, ok := parsed.entries[name]; !ok {
			c.logger.Info().Str("hub", name).Msg("Hub removed from configuration")
			delete(c.adapters, name)
			delete(c.configs, name)
		}
	}

	for _, name := range parsed.order {
		cfg := parsed.entries[name]
		if existing, ok := c.configs[name]; ok && reflect.DeepEqual(existing, cfg) {
			continue
		}
		adapter, err := c.build(name, cfg)
		if err != nil {
			c.logger.Warn().Err(err).Str("hub", name).Msg("Skipping hub with invalid configuration")
			continue
		}
		c.adapters[name] = adapter
		c.configs[name] = cfg
	}

	c.order = parsed.order
	c.mtime = info.ModTime()
	return c.ordered(), nil
}

// ByName returns the adapter for one configured hub.
func (c *AdapterCache) ByName(name string) (interfaces.HubAdapter, error) {
	adapters, err := c.Adapters()
	if err != nil {
		return nil, err
	}
	for _, adapter := range adapters {
		if adapter.Name() == name {
			return adapter, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, ErrHubNotConfigured)
}

func (c *AdapterCache) build(name string, cfg models.HubConfig) (interfaces.HubAdapter, error) {
	apiType := cfg.APIType
	if apiType == "" {
		c.logger.Warn().Str("hub", name).Msg("api_type not defined, dhus-api will be used")
		apiType = models.HubAPITypeDhus
	}
	switch apiType {
	case models.HubAPITypeDhus:
		return NewDhusAdapter(name, cfg.Credentials, c.logger), nil
	case models.HubAPITypeCsc:
		return NewCscAdapter(name, cfg.Credentials, c.logger), nil
	default:
		return nil, fmt.Errorf("unknown api_type %q, it can take only the values [dhus-api csc-api]", apiType)
	}
}

func (c *AdapterCache) ordered() []interfaces.HubAdapter {
	out := make([]interfaces.HubAdapter, 0, len(c.adapters))
	for _, name := range c.order {
		if adapter, ok := c.adapters[name]; ok {
			out = append(out, adapter)
		}
	}
	return out
}
