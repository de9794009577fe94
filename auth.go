package dav

import (
	"fmt"
	"net/http"
)

// HTTPClient performs HTTP requests. It's implemented by *http.Client.
//
// Implementations should not follow redirects on behalf of the caller
// when talking to servers discovered via well-known URIs: the client
// handles the one-hop well-known redirect itself.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClientWithBasicAuth returns an HTTP client that adds basic
// authentication to all outgoing requests. The Authorization header
// never appears in debug logs.
func HTTPClientWithBasicAuth(c HTTPClient, username, password string) HTTPClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &basicAuthHTTPClient{c, username, password}
}

type basicAuthHTTPClient struct {
	c                  HTTPClient
	username, password string
}

func (c *basicAuthHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.username == "" {
		return nil, fmt.Errorf("webdav: basic auth username is empty")
	}
	req.SetBasicAuth(c.username, c.password)
	return c.c.Do(req)
}
