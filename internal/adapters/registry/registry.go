// Package registry implements ports.RegistryContext (and, by the same
// method set, internal/solver.RegistryClient) over the tangram package
// registry's HTTP API, the same net/http + encoding/json idiom
// internal/adapters/nix uses for its NixHub client.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tangram.example.dev/tangram/internal/core/domain"
	"go.trai.ch/zerr"
)

const httpClientTimeout = 30 * time.Second

// Client queries a registry service's HTTP API for package versions,
// resolved identifiers, and dependency lists.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a registry Client against baseURL, authenticating requests
// with token when non-empty. An empty baseURL is valid at construction
// time (a workspace with no registry configured may still resolve purely
// path dependencies); any call that actually reaches the network returns
// ErrRegistryNotConfigured first.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: httpClientTimeout,
		},
	}
}

type versionsResponse struct {
	Versions []string `json:"versions"`
}

// Versions returns the published versions of name.
func (c *Client) Versions(name string) ([]string, error) {
	var out versionsResponse
	if err := c.get(fmt.Sprintf("/packages/%s/versions", name), &out); err != nil {
		return nil, err
	}
	return out.Versions, nil
}

type resolveResponse struct {
	Package domain.Identifier `json:"package"`
}

// Resolve returns the package object identifier for name at version.
func (c *Client) Resolve(name, version string) (domain.Identifier, error) {
	var out resolveResponse
	if err := c.get(fmt.Sprintf("/packages/%s/%s", name, version), &out); err != nil {
		return domain.Identifier{}, err
	}
	return out.Package, nil
}

type dependenciesResponse struct {
	Dependencies []string `json:"dependencies"`
}

// Dependencies returns the direct dependency specifiers declared by the
// package identified by id.
func (c *Client) Dependencies(id domain.Identifier) ([]domain.Specifier, error) {
	var out dependenciesResponse
	if err := c.get(fmt.Sprintf("/objects/%s/dependencies", id.String()), &out); err != nil {
		return nil, err
	}
	specs := make([]domain.Specifier, len(out.Dependencies))
	for i, key := range out.Dependencies {
		specs[i] = domain.ParseSpecifier(key)
	}
	return specs, nil
}

func (c *Client) get(path string, out any) error {
	if c.baseURL == "" {
		return domain.ErrRegistryNotConfigured
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return zerr.Wrap(err, domain.ErrRegistryRequestFailed.Error())
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zerr.Wrap(err, domain.ErrRegistryRequestFailed.Error())
	}
	defer resp.Body.Close() //nolint:errcheck // best effort close

	if resp.StatusCode != http.StatusOK {
		return zerr.With(domain.ErrRegistryResponseFailed, "path", path, "status", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return zerr.Wrap(err, domain.ErrRegistryParseFailed.Error())
	}
	return nil
}
