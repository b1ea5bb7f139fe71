package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

const searchPath = "/v2/search"

// ErrMissingCredentials is returned when a query lacks the installation id or country.
var ErrMissingCredentials = errors.New("provider: search requires installation id and country code")

// SearchClient implements Lookup.
type SearchClient struct {
	http    *http.Client
	baseURL string
	agent   string
}

// NewSearchClient returns a client for opts.SearchURL.
func NewSearchClient(opts Options) *SearchClient {
	return &SearchClient{
		http:    opts.httpClient(),
		baseURL: opts.SearchURL,
		agent:   opts.userAgent(),
	}
}

// Search looks up q.Number. Provider failures come back as *Error; use
// IsAccountError to tell recoverable credential problems apart.
func (c *SearchClient) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	if strings.TrimSpace(q.InstallationID) == "" || strings.TrimSpace(q.CountryCode) == "" {
		return SearchResult{}, ErrMissingCredentials
	}
	params := url.Values{}
	params.Set("q", strings.TrimSpace(q.Number))
	params.Set("countryCode", strings.TrimSpace(q.CountryCode))
	params.Set("type", "4")
	params.Set("locAddr", "")
	params.Set("placement", "SEARCHRESULTS,HISTORY,DETAILS")
	params.Set("encoding", "json")

	header := http.Header{}
	header.Set("User-Agent", c.agent)
	header.Set("Authorization", "Bearer "+q.InstallationID)

	raw, _, err := call(ctx, c.http, "search", http.MethodGet, joinURL(c.baseURL, searchPath), params, header, nil)
	if err != nil {
		return SearchResult{}, err
	}
	var res SearchResult
	if err := decode("search", raw, &res); err != nil {
		return SearchResult{}, err
	}
	return res, nil
}
