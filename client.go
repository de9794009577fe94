package dav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/samber/mo"

	"github.com/davware/go-dav/internal/xmlutil"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used for request/response debug logging.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithResolver sets the DNS resolver used for service discovery. The
// default is net.DefaultResolver.
func WithResolver(r DNSResolver) ClientOption {
	return func(c *Client) {
		c.resolver = r
	}
}

// Client is a generic WebDAV client.
//
// The client holds only immutable configuration plus the transport
// handle; concurrent calls against the same instance are safe. The base
// URL is rewritten exactly once, during Bootstrap. No call is retried
// and no response is cached: callers impose their own timeout and
// cancellation through the context.
type Client struct {
	http     HTTPClient
	endpoint *url.URL
	logger   *slog.Logger
	resolver DNSResolver
}

// NewClient creates a new WebDAV client talking to endpoint.
//
// The endpoint is composed of the scheme, authority and context path
// under which DAV requests are served. If c is nil, http.DefaultClient
// is used.
func NewClient(c HTTPClient, endpoint string, opts ...ClientOption) (*Client, error) {
	if c == nil {
		c = http.DefaultClient
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("webdav: invalid endpoint: %w", err)
	}
	if u.Path == "" {
		// This is important to avoid issues with path.Join
		u.Path = "/"
	}

	client := &Client{
		http:     c,
		endpoint: u,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		resolver: net.DefaultResolver,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// BaseURL returns a copy of the URL pointing to the server's context
// path.
func (c *Client) BaseURL() *url.URL {
	u := *c.endpoint
	return &u
}

// ResolveHref builds the request URL for an unescaped resource path. A
// relative path is joined onto the context path.
func (c *Client) ResolveHref(p string) *url.URL {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(c.endpoint.Path, p)
	}
	return &url.URL{
		Scheme:  c.endpoint.Scheme,
		User:    c.endpoint.User,
		Host:    c.endpoint.Host,
		Path:    p,
		RawPath: xmlutil.QuoteHref(p),
	}
}

func (c *Client) newRequest(ctx context.Context, method string, u *url.URL, body string) (*http.Request, error) {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, fmt.Errorf("webdav: failed to build request: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", `application/xml; charset=utf-8`)
	}
	return req, nil
}

// do sends a request and slurps the response body.
func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	c.logger.Debug("sending request", "method", req.Method, "url", req.URL.String())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("webdav: error executing http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("webdav: error reading response body: %w", err)
	}

	c.logger.Debug("received response",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"length", len(body))
	return resp, body, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode/100 != 2 {
		return &HTTPError{Code: resp.StatusCode}
	}
	return nil
}

// propfind sends a PROPFIND request for the given property names and
// returns the raw multistatus body.
func (c *Client) propfind(ctx context.Context, u *url.URL, depth Depth, names ...PropertyName) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(`<propfind xmlns="DAV:"><prop>`)
	for _, name := range names {
		sb.WriteString(renderEmptyElement(name))
	}
	sb.WriteString(`</prop></propfind>`)

	req, err := c.newRequest(ctx, "PROPFIND", u, sb.String())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", depth.String())

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return body, nil
}

// GetProperty fetches a single property of the resource at href.
//
// The returned option is empty when the server reports the property
// with no value. A property missing from an otherwise successful
// response is an error.
//
// The namespace of the property in the response is allowed to mismatch;
// see PropertyName.
func (c *Client) GetProperty(ctx context.Context, href string, name PropertyName) (mo.Option[string], error) {
	body, err := c.propfind(ctx, c.ResolveHref(href), DepthZero, name)
	if err != nil {
		return mo.None[string](), err
	}
	return parseProp(body, name)
}

// PropertyValue is a property value keyed by the requested name.
type PropertyValue struct {
	Name  PropertyName
	Value mo.Option[string]
}

// GetProperties fetches multiple properties of the resource at href in
// a single round trip. Values are returned in the same order as the
// names parameter.
func (c *Client) GetProperties(ctx context.Context, href string, names ...PropertyName) ([]PropertyValue, error) {
	body, err := c.propfind(ctx, c.ResolveHref(href), DepthZero, names...)
	if err != nil {
		return nil, err
	}

	results := make([]PropertyValue, 0, len(names))
	for _, name := range names {
		value, err := parseProp(body, name)
		if err != nil {
			return nil, err
		}
		results = append(results, PropertyValue{Name: name, Value: value})
	}
	return results, nil
}

// SetProperty updates a single property of the resource at href via
// PROPPATCH. An empty value removes the property. Returns the value as
// re-read from the server's response.
func (c *Client) SetProperty(ctx context.Context, href string, name PropertyName, value mo.Option[string]) (mo.Option[string], error) {
	action := "remove"
	if value.IsPresent() {
		action = "set"
	}
	body := fmt.Sprintf(
		`<propertyupdate xmlns="DAV:"><%[1]s><prop>%[2]s</prop></%[1]s></propertyupdate>`,
		action, renderElementWithText(name, value),
	)

	req, err := c.newRequest(ctx, "PROPPATCH", c.ResolveHref(href), body)
	if err != nil {
		return mo.None[string](), err
	}

	resp, respBody, err := c.do(req)
	if err != nil {
		return mo.None[string](), err
	}
	if err := checkStatus(resp); err != nil {
		return mo.None[string](), err
	}
	return parseProp(respBody, name)
}

// FindCurrentUserPrincipal resolves the current user's principal
// resource per RFC 5397. The base URL is queried first; on 404 or an
// absent property, the server root is tried. Returns nil when no
// principal was found; the caller must then obtain one out of band.
func (c *Client) FindCurrentUserPrincipal(ctx context.Context) (*url.URL, error) {
	principal, err := c.findHrefProp(ctx, c.BaseURL(), CurrentUserPrincipalName)
	switch {
	case err == nil && principal != nil:
		return principal, nil
	case err == nil || IsNotFound(err):
		// Try the root path instead.
	default:
		return nil, err
	}

	return c.findHrefProp(ctx, c.ResolveHref("/"), CurrentUserPrincipalName)
}

func (c *Client) findHrefProp(ctx context.Context, u *url.URL, name PropertyName) (*url.URL, error) {
	body, err := c.propfind(ctx, u, DepthZero, name)
	if err != nil {
		return nil, err
	}
	return parsePropHref(body, u, name)
}

// FindHrefsProp fetches a property containing one or more href children
// and resolves each against u. Used for home-set lookups, which may
// legitimately return several collections.
func (c *Client) FindHrefsProp(ctx context.Context, u *url.URL, name PropertyName) ([]*url.URL, error) {
	body, err := c.propfind(ctx, u, DepthZero, name)
	if err != nil {
		return nil, err
	}
	return parseHrefsProp(body, u, name)
}

// FindCollections lists collections of the given resource type directly
// below href (usually a home set). Entries whose resourcetype does not
// include resourceType are skipped.
func (c *Client) FindCollections(ctx context.Context, href string, resourceType PropertyName) ([]FoundCollection, error) {
	body, err := c.propfind(ctx, c.ResolveHref(href), DepthOne,
		ResourceTypeName,
		GetETagName,
		SupportedReportSetName,
	)
	if err != nil {
		return nil, err
	}
	return parseFindMultipleCollections(body, resourceType)
}

// ListResources enumerates the immediate members of the collection at
// collectionHref. The collection's own entry is not included.
func (c *Client) ListResources(ctx context.Context, collectionHref string) ([]ListedResource, error) {
	body, err := c.propfind(ctx, c.ResolveHref(collectionHref), DepthOne,
		ResourceTypeName,
		GetContentTypeName,
		GetETagName,
	)
	if err != nil {
		return nil, err
	}
	return parseListResources(body, collectionHref)
}

func (c *Client) put(ctx context.Context, href string, data []byte, etag string, ifMatch bool, mimeType string) (string, error) {
	u := c.ResolveHref(href)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("webdav: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	if ifMatch {
		req.Header.Set("If-Match", etag)
	} else {
		req.Header.Set("If-None-Match", "*")
	}

	resp, _, err := c.do(req)
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	return resp.Header.Get("ETag"), nil
}

// CreateResource creates a new resource at href. The request fails if a
// resource already exists there.
//
// Returns the new etag if the server supplied one. If it is empty, the
// etag must be requested in a follow-up call and cannot be obtained
// race-free.
func (c *Client) CreateResource(ctx context.Context, href string, data []byte, mimeType string) (string, error) {
	return c.put(ctx, href, data, "", false, mimeType)
}

// UpdateResource overwrites the resource at href. The request fails
// with a precondition error if the resource's current etag no longer
// equals etag; this conditional is the only concurrency control on
// writes.
//
// Returns the new etag if the server supplied one; see CreateResource.
func (c *Client) UpdateResource(ctx context.Context, href string, data []byte, etag, mimeType string) (string, error) {
	return c.put(ctx, href, data, etag, true, mimeType)
}

// Delete removes the resource at href, which may be a collection. The
// request fails if the resource's etag no longer equals etag.
func (c *Client) Delete(ctx context.Context, href, etag string) error {
	u := c.ResolveHref(href)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return fmt.Errorf("webdav: failed to build request: %w", err)
	}
	req.Header.Set("If-Match", etag)

	resp, _, err := c.do(req)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// ForceDelete removes the resource at href without any conditional
// header. This does not guard against concurrent modification; use
// Delete whenever an etag is available.
func (c *Client) ForceDelete(ctx context.Context, href string) error {
	u := c.ResolveHref(href)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return fmt.Errorf("webdav: failed to build request: %w", err)
	}

	resp, _, err := c.do(req)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// CreateCollection creates a collection at href via extended MKCOL
// (RFC 5689). Additional resource types may be passed; the
// DAV:collection resource type is implied and must not be supplied.
func (c *Client) CreateCollection(ctx context.Context, href string, resourceTypes ...PropertyName) error {
	var sb strings.Builder
	sb.WriteString(`<mkcol xmlns="DAV:"><set><prop><resourcetype><collection/>`)
	for _, rt := range resourceTypes {
		sb.WriteString(renderEmptyElement(rt))
	}
	sb.WriteString(`</resourcetype></prop></set></mkcol>`)

	req, err := c.newRequest(ctx, "MKCOL", c.ResolveHref(href), sb.String())
	if err != nil {
		return err
	}

	// Some servers return an empty body here; only the status is
	// checked.
	resp, _, err := c.do(req)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// MultiGet sends a REPORT request with the given body against
// collectionHref and parses the result, extracting dataProp as each
// resource's payload. The body is built by the protocol adapters, which
// embed percent-encoded hrefs.
func (c *Client) MultiGet(ctx context.Context, collectionHref, reportBody string, dataProp PropertyName) ([]FetchedResource, error) {
	req, err := c.newRequest(ctx, "REPORT", c.ResolveHref(collectionHref), reportBody)
	if err != nil {
		return nil, err
	}

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return parseMultiGet(body, dataProp)
}

// FindContextPath resolves the context path of host:port using the
// service's well-known URI (RFC 6764 section 5). Returns nil if the
// well-known path does not redirect; the transport must not follow
// redirects itself for the redirect to be observed.
func (c *Client) FindContextPath(ctx context.Context, service DiscoverableService, host string, port uint16) (*url.URL, error) {
	wellKnown := &url.URL{
		Scheme: service.Scheme(),
		Host:   net.JoinHostPort(host, strconv.Itoa(int(port))),
		Path:   service.WellKnownPath(),
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("webdav: failed to build request: %w", err)
	}

	// The server may require authentication on the well-known URI; the
	// status itself is irrelevant unless it is a redirection.
	resp, _, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 3 {
		return nil, nil
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("%w: missing Location header in redirect", ErrInvalidResponse)
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid Location header: %v", ErrInvalidResponse, err)
	}
	if u.Scheme != "" && u.Host != "" {
		return u, nil
	}
	if u.Scheme == "" {
		u.Scheme = service.Scheme()
	}
	if u.Host == "" {
		u.Host = wellKnown.Host
	}
	return u, nil
}

// CheckSupport issues an OPTIONS request against u and verifies that
// the DAV response header advertises the given capability token. A
// missing header and a header without the token are distinct errors,
// ErrMissingDAVHeader and ErrNotAdvertised.
func (c *Client) CheckSupport(ctx context.Context, u *url.URL, capability string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, u.String(), nil)
	if err != nil {
		return fmt.Errorf("webdav: failed to build request: %w", err)
	}

	resp, _, err := c.do(req)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}

	values := resp.Header.Values("Dav")
	if len(values) == 0 {
		return ErrMissingDAVHeader
	}
	header := strings.Join(values, ",")
	c.logger.Debug("DAV header", "url", u.String(), "value", header)
	for _, part := range strings.Split(header, ",") {
		if strings.TrimSpace(part) == capability {
			return nil
		}
	}
	return ErrNotAdvertised
}
