// -----------------------------------------------------------------------
// Last Modified: Thursday, 16th April 2026 2:48:33 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package hubs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// CscAdapter talks to a Copernicus Space Component (csc-api) OData catalog.
// Authentication is either basic or OAuth2 password grant, depending on
// whether the hub credentials carry a client id and token endpoint.
type CscAdapter struct {
	name        string
	apiURL      string
	user        string
	password    string
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	limiter     *rate.Limiter
	logger      arbor.ILogger
}

// cscProduct is the catalog entry subset the adapter needs.
type cscProduct struct {
	ID       string          `json:"Id"`
	Name     string          `json:"Name"`
	Checksum json.RawMessage `json:"Checksum"`
}

// NewCscAdapter builds an adapter from one hubs-file entry.
func NewCscAdapter(name string, creds models.HubCredentials, logger arbor.ILogger) *CscAdapter {
	version := creds.Version
	if version == "" {
		version = "v1"
	}
	apiURL := strings.TrimSuffix(creds.APIURL, "/") + "/odata/" + version + "/"

	a := &CscAdapter{
		name:       name,
		apiURL:     apiURL,
		user:       creds.User,
		password:   creds.Password,
		httpClient: newDownloadClient(30 * time.Minute),
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		logger:     logger,
	}

	if creds.ClientID != "" && creds.TokenEndpoint != "" {
		logger.Info().Str("hub", name).Str("api_url", creds.APIURL).Msg("Using oauth2 authentication")
		conf := &oauth2.Config{
			ClientID: creds.ClientID,
			Endpoint: oauth2.Endpoint{TokenURL: creds.TokenEndpoint},
		}
		// The token source refreshes on expiry; the initial token is fetched
		// lazily on first use so a dead token endpoint does not break
		// adapter construction.
		a.tokenSource = oauth2.ReuseTokenSource(nil, passwordTokenSource{
			conf:     conf,
			username: creds.User,
			password: creds.Password,
		})
	} else {
		logger.Info().Str("hub", name).Str("api_url", creds.APIURL).Msg("Using basic authentication")
	}

	return a
}

// passwordTokenSource fetches tokens with the resource-owner password grant.
type passwordTokenSource struct {
	conf     *oauth2.Config
	username string
	password string
}

func (s passwordTokenSource) Token() (*oauth2.Token, error) {
	return s.conf.PasswordCredentialsToken(context.Background(), s.username, s.password)
}

// Name returns the hub name from the configuration file.
func (a *CscAdapter) Name() string {
	return a.name
}

// authorize attaches credentials to an outgoing request.
func (a *CscAdapter) authorize(req *http.Request) error {
	if a.tokenSource != nil {
		token, err := a.tokenSource.Token()
		if err != nil {
			return fmt.Errorf("failed to fetch oauth2 token: %w", err)
		}
		token.SetAuthHeader(req)
		return nil
	}
	req.SetBasicAuth(a.user, a.password)
	return nil
}

// resolve queries the catalog for the product and returns its download URL
// and the advertised MD5, when usable.
func (a *CscAdapter) resolve(ctx context.Context, product string) (*models.ProductSource, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(product, ".zip")
	queryURL := a.apiURL + "Products?$filter=" + url.QueryEscape(fmt.Sprintf("startswith(Name,'%s')", stem))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, err
	}
	if err := a.authorize(req); err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog query returned status %d", resp.StatusCode)
	}

	var payload struct {
		Value []cscProduct `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	if len(payload.Value) == 0 {
		return nil, fmt.Errorf("%q in %s: %w", stem, a.apiURL, ErrProductNotFound)
	}

	hit := payload.Value[0]
	source := &models.ProductSource{
		DownloadURL: fmt.Sprintf("%sProducts(%s)/$value", a.apiURL, hit.ID),
		ExpectedMD5: usableMD5(hit.Checksum),
	}
	if source.ExpectedMD5 == "" {
		a.logger.Warn().
			Str("hub", a.name).
			Str("product", stem).
			Msg("Checksum cannot be verified, no usable MD5 in catalog product info")
	}
	return source, nil
}

// Download resolves and streams the product into dir, verifying the MD5 when
// the catalog advertised one.
func (a *CscAdapter) Download(ctx context.Context, product, dir string) (string, error) {
	source, err := a.resolve(ctx, product)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.DownloadURL, nil)
	if err != nil {
		return "", err
	}
	if err := a.authorize(req); err != nil {
		return "", err
	}

	stem := strings.TrimSuffix(product, ".zip")
	productPath := filepath.Join(dir, stem+".zip")
	return streamToFile(a.httpClient, req, productPath, source.ExpectedMD5)
}

// streamToFile downloads the response body in fixed-size chunks, hashing
// while writing when an expected MD5 is supplied.
func streamToFile(client *http.Client, req *http.Request, path, expectedMD5 string) (string, error) {
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	hash := md5.New()
	buf := make([]byte, downloadChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if expectedMD5 != "" {
				hash.Write(buf[:n])
			}
			if _, err := f.Write(buf[:n]); err != nil {
				return "", fmt.Errorf("failed to write %s: %w", path, err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("download stream failed: %w", readErr)
		}
	}

	if expectedMD5 != "" {
		got := hex.EncodeToString(hash.Sum(nil))
		if got != expectedMD5 {
			os.Remove(path)
			return "", fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expectedMD5, got)
		}
	}
	return path, nil
}
