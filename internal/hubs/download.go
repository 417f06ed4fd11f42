package hubs

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/interfaces"
)

// Downloader fetches products from the configured hubs with per-hub
// failover.
type Downloader struct {
	cache  *AdapterCache
	logger arbor.ILogger
}

// NewDownloader creates a downloader over the given hubs credentials file.
func NewDownloader(hubsCredentialsFile string, logger arbor.ILogger) *Downloader {
	return &Downloader{
		cache:  NewAdapterCache(hubsCredentialsFile, logger),
		logger: logger,
	}
}

// Download tries each configured hub in order, or only preferredHub when
// set, and returns the local path of the first successful download.
func (d *Downloader) Download(ctx context.Context, product, dir, preferredHub, orderID string) (string, error) {
	var adapters []interfaces.HubAdapter

	if preferredHub != "" {
		adapter, err := d.cache.ByName(preferredHub)
		if err != nil {
			return "", err
		}
		adapters = []interfaces.HubAdapter{adapter}
	} else {
		var err error
		adapters, err = d.cache.Adapters()
		if err != nil {
			return "", err
		}
	}

	tried := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		tried = append(tried, adapter.Name())
		d.logger.Info().
			Str("order_id", orderID).
			Str("hub", adapter.Name()).
			Str("product", product).
			Msg("Trying to download product")

		path, err := adapter.Download(ctx, product, dir)
		if err != nil {
			d.logger.Warn().
				Err(err).
				Str("order_id", orderID).
				Str("hub", adapter.Name()).
				Msg("Not able to download from hub")
			continue
		}
		return path, nil
	}

	return "", fmt.Errorf("order %s: %w (tried %v)", orderID, ErrAllHubsExhausted, tried)
}
