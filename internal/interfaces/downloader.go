package interfaces

import "context"

// HubAdapter is one remote data hub the downloader can try. Adapters are
// constructed lazily from the hubs credentials file and cached until the
// file changes on disk.
type HubAdapter interface {
	// Name returns the hub name from the configuration file.
	Name() string

	// Download resolves product in the hub catalog, streams it into dir and
	// returns the local path of the downloaded archive. The archive checksum
	// is verified against the catalog MD5 when one is advertised.
	Download(ctx context.Context, product, dir string) (string, error)
}

// Downloader fetches an input product from the configured hubs.
type Downloader interface {
	// Download tries each configured hub in order (or only preferredHub when
	// set) and returns the local path of the first successful download.
	Download(ctx context.Context, product, dir, preferredHub, orderID string) (string, error)
}
