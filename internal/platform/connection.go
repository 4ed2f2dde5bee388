package platform

import (
	"net/http"
	"os"

	"adi/internal/errs"
)

// Connection bundles the API surfaces over one client and one
// organization scope.
type Connection struct {
	Client          *Client
	Organizations   *Scope
	Datasets        *Datasets
	Transformations *Transformations
}

// Connect falls back to ADI_API_HOST and ADI_API_KEY for empty arguments.
func Connect(host, apiKey string, hc *http.Client) (*Connection, error) {
	if host == "" {
		host = os.Getenv("ADI_API_HOST")
	}
	if apiKey == "" {
		apiKey = os.Getenv("ADI_API_KEY")
	}
	if host == "" {
		return nil, errs.Configuration("platform", "no API host configured")
	}
	if apiKey == "" {
		return nil, errs.Configuration("platform", "no API key configured")
	}
	c := New(host, apiKey, hc)
	scope := NewScope(c)
	return &Connection{
		Client:          c,
		Organizations:   scope,
		Datasets:        NewDatasets(c, scope),
		Transformations: NewTransformations(c, scope),
	}, nil
}
