package hubs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

const testProduct = "S2A_MSIL1C_20211022T062221_N0301_R048_T39GWH_20211022T064132"

// newCscTestServer fakes a csc-api hub serving one product.
func newCscTestServer(t *testing.T, payload []byte, advertiseMD5 bool, corruptMD5 bool) *httptest.Server {
	sum := md5.Sum(payload)
	digest := hex.EncodeToString(sum[:])
	if corruptMD5 {
		digest = "00000000000000000000000000000000"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/odata/v1/Products", func(w http.ResponseWriter, r *http.Request) {
		checksum := ""
		if advertiseMD5 {
			checksum = fmt.Sprintf(`,"Checksum":[{"Value":"%s","Algorithm":"MD5"}]`, digest)
		}
		fmt.Fprintf(w, `{"value":[{"Id":"uuid-1","Name":"%s"%s}]}`, testProduct, checksum)
	})
	mux.HandleFunc("/odata/v1/Products(uuid-1)/$value", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	return httptest.NewServer(mux)
}

func writeHubsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hubs_credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCscAdapter_DownloadWithChecksum(t *testing.T) {
	payload := []byte("zip bytes")
	server := newCscTestServer(t, payload, true, false)
	defer server.Close()

	hubsFile := writeHubsFile(t, fmt.Sprintf(`
hub_a:
  api_type: csc-api
  credentials:
    api_url: %s
    user: user
    password: pass
`, server.URL))

	downloader := NewDownloader(hubsFile, arbor.NewLogger())
	dir := t.TempDir()

	path, err := downloader.Download(context.Background(), testProduct, dir, "", "order-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, testProduct+".zip"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestCscAdapter_ChecksumMismatch(t *testing.T) {
	server := newCscTestServer(t, []byte("zip bytes"), true, true)
	defer server.Close()

	hubsFile := writeHubsFile(t, fmt.Sprintf(`
hub_a:
  api_type: csc-api
  credentials:
    api_url: %s
    user: user
    password: pass
`, server.URL))

	downloader := NewDownloader(hubsFile, arbor.NewLogger())

	_, err := downloader.Download(context.Background(), testProduct, t.TempDir(), "", "order-1")
	// The single hub fails on checksum, so the failover exhausts.
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllHubsExhausted)

	adapter, err := NewDownloader(hubsFile, arbor.NewLogger()).cache.ByName("hub_a")
	require.NoError(t, err)
	_, err = adapter.Download(context.Background(), testProduct, t.TempDir())
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestCscAdapter_SkipsVerificationWithoutMD5(t *testing.T) {
	server := newCscTestServer(t, []byte("zip bytes"), false, false)
	defer server.Close()

	hubsFile := writeHubsFile(t, fmt.Sprintf(`
hub_a:
  api_type: csc-api
  credentials:
    api_url: %s
    user: user
    password: pass
`, server.URL))

	downloader := NewDownloader(hubsFile, arbor.NewLogger())
	_, err := downloader.Download(context.Background(), testProduct, t.TempDir(), "", "order-1")
	assert.NoError(t, err)
}

func TestDownloader_FailoverAcrossHubs(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer broken.Close()

	working := newCscTestServer(t, []byte("zip bytes"), true, false)
	defer working.Close()

	hubsFile := writeHubsFile(t, fmt.Sprintf(`
hub_broken:
  api_type: csc-api
  credentials:
    api_url: %s
    user: user
    password: pass
hub_working:
  api_type: csc-api
  credentials:
    api_url: %s
    user: user
    password: pass
`, broken.URL, working.URL))

	downloader := NewDownloader(hubsFile, arbor.NewLogger())

	path, err := downloader.Download(context.Background(), testProduct, t.TempDir(), "", "order-1")
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestDownloader_PreferredHubOnly(t *testing.T) {
	working := newCscTestServer(t, []byte("zip bytes"), true, false)
	defer working.Close()

	hubsFile := writeHubsFile(t, fmt.Sprintf(`
hub_a:
  api_type: csc-api
  credentials:
    api_url: %s
    user: user
    password: pass
`, working.URL))

	downloader := NewDownloader(hubsFile, arbor.NewLogger())

	_, err := downloader.Download(context.Background(), testProduct, t.TempDir(), "hub_a", "order-1")
	assert.NoError(t, err)

	_, err = downloader.Download(context.Background(), testProduct, t.TempDir(), "missing_hub", "order-1")
	assert.ErrorIs(t, err, ErrHubNotConfigured)
}

func TestAdapterCache_OrderAndTypes(t *testing.T) {
	hubsFile := writeHubsFile(t, `
second_but_first:
  api_type: csc-api
  credentials:
    api_url: http://localhost:9
    user: u
    password: p
classic:
  api_type: dhus-api
  credentials:
    api_url: http://localhost:9
    user: u
    password: p
defaulted:
  credentials:
    api_url: http://localhost:9
    user: u
    password: p
`)

	cache := NewAdapterCache(hubsFile, arbor.NewLogger())
	adapters, err := cache.Adapters()
	require.NoError(t, err)
	require.Len(t, adapters, 3)

	// File order is preserved, it drives the failover order.
	assert.Equal(t, "second_but_first", adapters[0].Name())
	assert.Equal(t, "classic", adapters[1].Name())
	assert.Equal(t, "defaulted", adapters[2].Name())

	assert.IsType(t, &CscAdapter{}, adapters[0])
	assert.IsType(t, &DhusAdapter{}, adapters[1])
	// Missing api_type falls back to dhus-api.
	assert.IsType(t, &DhusAdapter{}, adapters[2])
}

func TestAdapterCache_MissingFile(t *testing.T) {
	cache := NewAdapterCache(filepath.Join(t.TempDir(), "absent.yaml"), arbor.NewLogger())
	_, err := cache.Adapters()
	assert.Error(t, err)
}
