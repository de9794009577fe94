// Package caldav provides a CalDAV client. CalDAV is defined in
// RFC 4791.
package caldav

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/samber/mo"

	dav "github.com/davware/go-dav"
	"github.com/davware/go-dav/internal/xmlutil"
)

// Client is a CalDAV client. The generic WebDAV operations of the
// embedded client are available alongside the calendar-specific ones.
type Client struct {
	*dav.Client
}

// NewClient creates a new CalDAV client talking to endpoint.
func NewClient(c dav.HTTPClient, endpoint string, opts ...dav.ClientOption) (*Client, error) {
	client, err := dav.NewClient(c, endpoint, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{client}, nil
}

// ServiceForURL maps a URL to the CalDAV service type to be discovered
// for it. The caldav and caldavs schemes are accepted as aliases of
// http and https.
func ServiceForURL(u *url.URL) (dav.DiscoverableService, error) {
	switch u.Scheme {
	case "https", "caldavs":
		return dav.ServiceCalDAVS, nil
	case "http", "caldav":
		return dav.ServiceCalDAV, nil
	default:
		return 0, fmt.Errorf("caldav: scheme %q is not valid for caldav discovery", u.Scheme)
	}
}

// NewClientWithBootstrap creates a CalDAV client and immediately runs
// service discovery for endpoint's domain, rewriting the base URL to
// the discovered context URL. The configured URL is kept when discovery
// finds nothing.
func NewClientWithBootstrap(ctx context.Context, c dav.HTTPClient, endpoint string, opts ...dav.ClientOption) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav: invalid endpoint: %w", err)
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
		return nil, fmt.Errorf("caldav: bootstrap failed: %w", err)
	}
	return client, nil
}

// CheckCalendarAccess verifies that the server advertises the
// calendar-access capability on the base URL.
func (c *Client) CheckCalendarAccess(ctx context.Context) error {
	return c.CheckSupport(ctx, c.BaseURL(), "calendar-access")
}

// FindCalendarHomeSet resolves the calendar home set of the principal
// at the given unescaped href. Servers may report more than one.
func (c *Client) FindCalendarHomeSet(ctx context.Context, principal string) ([]*url.URL, error) {
	return c.FindHrefsProp(ctx, c.ResolveHref(principal), dav.CalendarHomeSetName)
}

// FindCalendars lists the calendar collections directly below the home
// set at the given unescaped href.
func (c *Client) FindCalendars(ctx context.Context, homeSet string) ([]dav.FoundCollection, error) {
	return c.FindCollections(ctx, homeSet, dav.CalendarName)
}

// CreateCalendar creates a calendar collection at the given unescaped
// href.
func (c *Client) CreateCalendar(ctx context.Context, href string) error {
	return c.CreateCollection(ctx, href, dav.CalendarName)
}

// GetCalendarResources fetches the calendar objects at hrefs via a
// calendar-multiget report against the calendar at calendarHref. Both
// the calendar href and the object hrefs are unescaped paths.
//
// Entries that failed to fetch are returned with their status code set;
// a single missing object does not fail the whole call.
func (c *Client) GetCalendarResources(ctx context.Context, calendarHref string, hrefs []string) ([]dav.FetchedResource, error) {
	var sb strings.Builder
	sb.WriteString(`<C:calendar-multiget xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">`)
	sb.WriteString(`<prop><getetag/><C:calendar-data/></prop>`)
	for _, href := range hrefs {
		fmt.Fprintf(&sb, "<href>%s</href>", xmlutil.QuoteHref(href))
	}
	sb.WriteString(`</C:calendar-multiget>`)

	return c.MultiGet(ctx, calendarHref, sb.String(), dav.CalendarDataName)
}

// PutCalendarObject writes a calendar object to the given unescaped
// href. An empty etag creates the object and fails if one already
// exists there; a non-empty etag overwrites and fails if the stored
// object changed in the meantime.
//
// Returns the new etag if the server supplied one. If it is empty, the
// etag must be requested in a follow-up call and cannot be obtained
// race-free.
func (c *Client) PutCalendarObject(ctx context.Context, href string, cal *ical.Calendar, etag string) (string, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("caldav: failed to encode calendar object: %w", err)
	}
	if etag == "" {
		return c.CreateResource(ctx, href, buf.Bytes(), ical.MIMEType)
	}
	return c.UpdateResource(ctx, href, buf.Bytes(), etag, ical.MIMEType)
}

// CreateCalendarObject stores a new calendar object in the calendar at
// calendarHref under a generated name, and returns the object's href
// and etag. The etag is fetched separately when the server does not
// return one from the upload; in that rare case it is not guaranteed to
// match the uploaded version.
func (c *Client) CreateCalendarObject(ctx context.Context, calendarHref string, cal *ical.Calendar) (string, string, error) {
	href := path.Join(calendarHref, uuid.NewString()+".ics")
	etag, err := c.PutCalendarObject(ctx, href, cal, "")
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

// DecodeCalendarData parses the payload of a fetched calendar resource.
func DecodeCalendarData(data string) (*ical.Calendar, error) {
	cal, err := ical.NewDecoder(strings.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("caldav: failed to decode calendar object: %w", err)
	}
	return cal, nil
}

// GetCalendarDisplayName fetches the display name of the calendar at
// the given unescaped href.
func (c *Client) GetCalendarDisplayName(ctx context.Context, href string) (mo.Option[string], error) {
	return c.GetProperty(ctx, href, dav.DisplayNameName)
}

// SetCalendarDisplayName changes the display name of the calendar at
// the given unescaped href. An empty value removes the name.
func (c *Client) SetCalendarDisplayName(ctx context.Context, href string, name mo.Option[string]) (mo.Option[string], error) {
	return c.SetProperty(ctx, href, dav.DisplayNameName, name)
}

// GetCalendarColor fetches the color of the calendar at the given
// unescaped href. The property is non-standard but widely supported.
func (c *Client) GetCalendarColor(ctx context.Context, href string) (mo.Option[string], error) {
	return c.GetProperty(ctx, href, dav.CalendarColorName)
}

// SetCalendarColor changes the color of the calendar at the given
// unescaped href. An empty value removes the color.
func (c *Client) SetCalendarColor(ctx context.Context, href string, color mo.Option[string]) (mo.Option[string], error) {
	return c.SetProperty(ctx, href, dav.CalendarColorName, color)
}
