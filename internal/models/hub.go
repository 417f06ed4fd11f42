package models

// HubAPIType selects the adapter used for a configured hub.
type HubAPIType string

const (
	HubAPITypeDhus HubAPIType = "dhus-api"
	HubAPITypeCsc  HubAPIType = "csc-api"
)

// HubCredentials holds the connection settings of one remote data hub.
type HubCredentials struct {
	APIURL        string `yaml:"api_url"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	ClientID      string `yaml:"client_id"`
	TokenEndpoint string `yaml:"token_endpoint"`
	Version       string `yaml:"version"`
}

// HubConfig is one entry of the hubs credentials YAML file.
type HubConfig struct {
	APIType     HubAPIType     `yaml:"api_type"`
	Credentials HubCredentials `yaml:"credentials"`
	Auth        string         `yaml:"auth"`
	QueryAuth   string         `yaml:"query_auth"`
	DownloadAuth string        `yaml:"download_auth"`
	QueryAPI    string         `yaml:"query_api"`
}

// ProductSource is the catalog resolution of a product name on a hub.
type ProductSource struct {
	DownloadURL string
	ExpectedMD5 string
}
