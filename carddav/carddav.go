// Package carddav provides a CardDAV client. CardDAV is defined in
// RFC 6352.
package carddav

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/emersion/go-vcard"
	"github.com/google/uuid"
	"github.com/samber/mo"

	dav "github.com/davware/go-dav"
	"github.com/davware/go-dav/internal/xmlutil"
)

// MIMEType is the media type of vCard address objects.
const MIMEType = "text/vcard"

// Client is a CardDAV client. The generic WebDAV operations of the
// embedded client are available alongside the contacts-specific ones.
type Client struct {
	*dav.Client
}

// NewClient creates a new CardDAV client talking to endpoint.
func NewClient(c dav.HTTPClient, endpoint string, opts ...dav.ClientOption) (*Client, error) {
	client, err := dav.NewClient(c, endpoint, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{client}, nil
}

// ServiceForURL maps a URL to the CardDAV service type to be discovered
// for it. The carddav and carddavs schemes are accepted as aliases of
// http and https.
func ServiceForURL(u *url.URL) (dav.DiscoverableService, error) {
	switch u.Scheme {
	case "https", "carddavs":
		return dav.ServiceCardDAVS, nil
	case "http", "carddav":
		return dav.ServiceCardDAV, nil
	default:
		return 0, fmt.Errorf("carddav: scheme %q is not valid for carddav discovery", u.Scheme)
	}
}

// NewClientWithBootstrap creates a CardDAV client and immediately runs
// service discovery for endpoint's domain, rewriting the base URL to
// the discovered context URL. The configured URL is kept when discovery
// finds nothing.
func NewClientWithBootstrap(ctx context.Context, c dav.HTTPClient, endpoint string, opts ...dav.ClientOption) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("carddav: invalid endpoint: %w", err)
	}
	service, err := ServiceForURL(u)
	if err != nil {
		return nil, err
	}
	u.Scheme = service.Scheme()

	client, err := NewClient(c, u.String(), opts...)
	if err != nil {
		return nil, err
	}
	if err := client.Bootstrap(ctx, service); err != nil {
		return nil, fmt.Errorf("carddav: bootstrap failed: %w", err)
	}
	return client, nil
}

// CheckAddressBookAccess verifies that the server advertises the
// addressbook capability on the base URL.
func (c *Client) CheckAddressBookAccess(ctx context.Context) error {
	return c.CheckSupport(ctx, c.BaseURL(), "addressbook")
}

// FindAddressBookHomeSet resolves the address book home set of the
// principal at the given unescaped href. Servers may report more than
// one.
func (c *Client) FindAddressBookHomeSet(ctx context.Context, principal string) ([]*url.URL, error) {
	return c.FindHrefsProp(ctx, c.ResolveHref(principal), dav.AddressBookHomeSetName)
}

// FindAddressBooks lists the address book collections directly below
// the home set at the given unescaped href.
func (c *Client) FindAddressBooks(ctx context.Context, homeSet string) ([]dav.FoundCollection, error) {
	return c.FindCollections(ctx, homeSet, dav.AddressBookName)
}

// CreateAddressBook creates an address book collection at the given
// unescaped href.
func (c *Client) CreateAddressBook(ctx context.Context, href string) error {
	return c.CreateCollection(ctx, href, dav.AddressBookName)
}

// GetAddressBookResources fetches the address objects at hrefs via an
// addressbook-multiget report against the address book at bookHref.
// Both the book href and the object hrefs are unescaped paths.
//
// Entries that failed to fetch are returned with their status code set;
// a single missing object does not fail the whole call.
func (c *Client) GetAddressBookResources(ctx context.Context, bookHref string, hrefs []string) ([]dav.FetchedResource, error) {
	var sb strings.Builder
	sb.WriteString(`<C:addressbook-multiget xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">`)
	sb.WriteString(`<D:prop><D:getetag/><C:address-data/></D:prop>`)
	for _, href := range hrefs {
		fmt.Fprintf(&sb, "<D:href>%s</D:href>", xmlutil.QuoteHref(href))
	}
	sb.WriteString(`</C:addressbook-multiget>`)

	return c.MultiGet(ctx, bookHref, sb.String(), dav.AddressDataName)
}

// PutAddressObject writes an address object to the given unescaped
// href. An empty etag creates the object and fails if one already
// exists there; a non-empty etag overwrites and fails if the stored
// object changed in the meantime.
//
// Returns the new etag if the server supplied one. If it is empty, the
// etag must be requested in a follow-up call and cannot be obtained
// race-free.
func (c *Client) PutAddressObject(ctx context.Context, href string, card vcard.Card, etag string) (string, error) {
	var buf bytes.Buffer
	if err := vcard.NewEncoder(&buf).Encode(card); err != nil {
		return "", fmt.Errorf("carddav: failed to encode address object: %w", err)
	}
	if etag == "" {
		return c.CreateResource(ctx, href, buf.Bytes(), MIMEType)
	}
	return c.UpdateResource(ctx, href, buf.Bytes(), etag, MIMEType)
}

// CreateAddressObject stores a new address object in the address book
// at bookHref under a generated name, and returns the object's href and
// etag. The etag is fetched separately when the server does not return
// one from the upload; in that rare case it is not guaranteed to match
// the uploaded version.
func (c *Client) CreateAddressObject(ctx context.Context, bookHref string, card vcard.Card) (string, string, error) {
	href := path.Join(bookHref, uuid.NewString()+".vcf")
	etag, err := c.PutAddressObject(ctx, href, card, "")
	if err != nil {
		return "", "", err
	}
	if etag == "" {
		value, err := c.GetProperty(ctx, href, dav.GetETagName)
		if err != nil {
			return "", "", err
		}
		etag = value.OrElse("")
	}
	return href, etag, nil
}

// DecodeAddressData parses the payload of a fetched address resource.
func DecodeAddressData(data string) (vcard.Card, error) {
	card, err := vcard.NewDecoder(strings.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("carddav: failed to decode address object: %w", err)
	}
	return card, nil
}

// GetAddressBookDisplayName fetches the display name of the address
// book at the given unescaped href.
func (c *Client) GetAddressBookDisplayName(ctx context.Context, href string) (mo.Option[string], error) {
	return c.GetProperty(ctx, href, dav.DisplayNameName)
}

// SetAddressBookDisplayName changes the display name of the address
// book at the given unescaped href. An empty value removes the name.
func (c *Client) SetAddressBookDisplayName(ctx context.Context, href string, name mo.Option[string]) (mo.Option[string], error) {
	return c.SetProperty(ctx, href, dav.DisplayNameName, name)
}
