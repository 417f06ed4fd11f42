package hubs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/models"
	"golang.org/x/time/rate"
)

// DhusAdapter talks to a Data Hub Software (dhus-api) instance: OpenSearch
// for catalog resolution, OData for the byte stream. Authentication is
// always basic.
type DhusAdapter struct {
	name       string
	apiURL     string
	user       string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewDhusAdapter builds an adapter from one hubs-file entry.
func NewDhusAdapter(name string, creds models.HubCredentials, logger arbor.ILogger) *DhusAdapter {
	return &DhusAdapter{
		name:       name,
		apiURL:     strings.TrimSuffix(creds.APIURL, "/"),
		user:       creds.User,
		password:   creds.Password,
		httpClient: newDownloadClient(30 * time.Minute),
		limiter:    rate.NewLimiter(rate.Limit(2), 2),
		logger:     logger,
	}
}

// Name returns the hub name from the configuration file.
func (a *DhusAdapter) Name() string {
	return a.name
}

// dhusEntry is the OpenSearch result subset the adapter needs. The str list
// carries the product uuid, the MD5 arrives separately via OData.
type dhusEntry struct {
	ID string `json:"id"`
}

// resolve finds the product uuid via the OpenSearch endpoint and derives the
// OData download URL. DHuS exposes the MD5 at the Checksum/Value resource.
func (a *DhusAdapter) resolve(ctx context.Context, product string) (*models.ProductSource, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(product, ".zip")
	searchURL := fmt.Sprintf("%s/search?q=identifier:%s&format=json&rows=1",
		a.apiURL, url.QueryEscape(fmt.Sprintf("%q", stem)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(a.user, a.password)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog query returned status %d", resp.StatusCode)
	}

	var payload struct {
		Feed struct {
			Entry json.RawMessage `json:"entry"`
		} `json:"feed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	// OpenSearch renders a single hit as an object, several as a list.
	var entries []dhusEntry
	if len(payload.Feed.Entry) > 0 {
		var one dhusEntry
		if err := json.Unmarshal(payload.Feed.Entry, &one); err == nil && one.ID != "" {
			entries = append(entries, one)
		} else if err := json.Unmarshal(payload.Feed.Entry, &entries); err != nil {
			return nil, fmt.Errorf("failed to decode catalog entries: %w", err)
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%q in %s: %w", stem, a.apiURL, ErrProductNotFound)
	}

	uuid := entries[0].ID
	source := &models.ProductSource{
		DownloadURL: fmt.Sprintf("%s/odata/v1/Products('%s')/$value", a.apiURL, uuid),
		ExpectedMD5: a.fetchMD5(ctx, uuid),
	}
	if source.ExpectedMD5 == "" {
		a.logger.Warn().
			Str("hub", a.name).
			Str("product", stem).
			Msg("Checksum cannot be verified, no usable MD5 in catalog product info")
	}
	return source, nil
}

// fetchMD5 reads the advertised checksum. A failure here only disables
// verification, it never fails the download.
func (a *DhusAdapter) fetchMD5(ctx context.Context, uuid string) string {
	checksumURL := fmt.Sprintf("%s/odata/v1/Products('%s')?$format=json&$select=Checksum", a.apiURL, uuid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checksumURL, nil)
	if err != nil {
		return ""
	}
	req.SetBasicAuth(a.user, a.password)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var payload struct {
		D struct {
			Checksum json.RawMessage `json:"Checksum"`
		} `json:"d"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ""
	}
	return usableMD5(payload.D.Checksum)
}

// Download resolves and streams the product into dir.
func (a *DhusAdapter) Download(ctx context.Context, product, dir string) (string, error) {
	source, err := a.resolve(ctx, product)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.DownloadURL, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.user, a.password)

	stem := strings.TrimSuffix(product, ".zip")
	productPath := filepath.Join(dir, stem+".zip")
	return streamToFile(a.httpClient, req, productPath, source.ExpectedMD5)
}
