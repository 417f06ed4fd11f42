package hubs

import "errors"

var (
	// ErrProductNotFound means the hub catalog returned zero hits for the
	// requested product name.
	ErrProductNotFound = errors.New("product not found")

	// ErrChecksumMismatch means the streamed bytes do not hash to the MD5
	// the catalog advertised.
	ErrChecksumMismatch = errors.New("checksum does not match")

	// ErrAllHubsExhausted means every configured hub failed to deliver the
	// product.
	ErrAllHubsExhausted = errors.New("could not download product from any configured hub")

	// ErrHubNotConfigured means the caller asked for a hub name that is not
	// present in the credentials file.
	ErrHubNotConfigured = errors.New("hub not found in configuration")
)
