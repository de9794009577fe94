package caldav

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dav "github.com/davware/go-dav"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client, err := NewClient(nil, ts.URL+"/dav/")
	require.NoError(t, err)
	return client, ts
}

func testCalendar(t *testing.T) *ical.Calendar {
	t.Helper()
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, "3c87f376-18cd-45f6@example.com")
	event.Props.SetText(ical.PropSummary, "Standup")
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))
	event.Props.SetDateTime(ical.PropDateTimeStart, time.Date(2024, 2, 2, 9, 0, 0, 0, time.UTC))

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//tests//EN")
	cal.Children = append(cal.Children, event.Component)
	return cal
}

func TestServiceForURL(t *testing.T) {
	for input, want := range map[string]dav.DiscoverableService{
		"https://example.com": dav.ServiceCalDAVS,
		"caldavs://example.com": dav.ServiceCalDAVS,
		"http://example.com":  dav.ServiceCalDAV,
		"caldav://example.com": dav.ServiceCalDAV,
	} {
		u, err := url.Parse(input)
		require.NoError(t, err)
		service, err := ServiceForURL(u)
		require.NoError(t, err)
		assert.Equal(t, want, service, "input %q", input)
	}

	u, err := url.Parse("ftp://example.com")
	require.NoError(t, err)
	_, err = ServiceForURL(u)
	assert.Error(t, err)
}

func TestGetCalendarResourcesRequestBody(t *testing.T) {
	var gotBody string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "REPORT", r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = string(body)

		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, `<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
			<response>
				<href>/dav/calendar/with%20space.ics</href>
				<propstat>
					<prop>
						<getetag>"abc"</getetag>
						<C:calendar-data>BEGIN:VCALENDAR
END:VCALENDAR
</C:calendar-data>
					</prop>
					<status>HTTP/1.1 200 OK</status>
				</propstat>
			</response>
		</multistatus>`)
	}))

	fetched, err := client.GetCalendarResources(context.Background(),
		"/dav/calendar/", []string{"/dav/calendar/with space.ics"})
	require.NoError(t, err)

	assert.Equal(t,
		`<C:calendar-multiget xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">`+
			`<prop><getetag/><C:calendar-data/></prop>`+
			`<href>/dav/calendar/with%20space.ics</href>`+
			`</C:calendar-multiget>`,
		gotBody)

	require.Len(t, fetched, 1)
	require.NotNil(t, fetched[0].Content)
	assert.Equal(t, "/dav/calendar/with space.ics", fetched[0].Href)
	assert.Equal(t, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", fetched[0].Content.Data)
}

func TestFindCalendars(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "PROPFIND", r.Method)
		assert.Equal(t, "1", r.Header.Get("Depth"))

		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, `<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
			<response>
				<href>/dav/calendars/user/</href>
				<propstat>
					<prop><resourcetype><collection/></resourcetype></prop>
					<status>HTTP/1.1 200 OK</status>
				</propstat>
			</response>
			<response>
				<href>/dav/calendars/user/default/</href>
				<propstat>
					<prop>
						<resourcetype><collection/><C:calendar/></resourcetype>
						<getetag>"55-66"</getetag>
						<supported-report-set>
							<supported-report><report><sync-collection/></report></supported-report>
						</supported-report-set>
					</prop>
					<status>HTTP/1.1 200 OK</status>
				</propstat>
			</response>
		</multistatus>`)
	}))

	calendars, err := client.FindCalendars(context.Background(), "/dav/calendars/user/")
	require.NoError(t, err)
	require.Len(t, calendars, 1)
	assert.Equal(t, "/dav/calendars/user/default/", calendars[0].Href)
	assert.True(t, calendars[0].SupportsSync)
}

func TestFindCalendarHomeSet(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, `<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
			<response>
				<href>/principals/alice/</href>
				<propstat>
					<prop>
						<C:calendar-home-set><href>/dav/calendars/alice/</href></C:calendar-home-set>
					</prop>
					<status>HTTP/1.1 200 OK</status>
				</propstat>
			</response>
		</multistatus>`)
	}))

	homeSets, err := client.FindCalendarHomeSet(context.Background(), "/principals/alice/")
	require.NoError(t, err)
	require.Len(t, homeSets, 1)
	assert.Equal(t, "/dav/calendars/alice/", homeSets[0].Path)
}

func TestCreateCalendarObject(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "*", r.Header.Get("If-None-Match"))
		assert.Equal(t, ical.MIMEType, r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "BEGIN:VCALENDAR")
		assert.Contains(t, string(body), "SUMMARY:Standup")

		w.Header().Set("ETag", `"fresh"`)
		w.WriteHeader(http.StatusCreated)
	}))

	href, etag, err := client.CreateCalendarObject(context.Background(),
		"/dav/calendar/", testCalendar(t))
	require.NoError(t, err)
	assert.Equal(t, `"fresh"`, etag)
	assert.True(t, strings.HasPrefix(href, "/dav/calendar/"))
	assert.True(t, strings.HasSuffix(href, ".ics"))
}

func TestPutCalendarObjectUpdate(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"old"`, r.Header.Get("If-Match"))
		assert.Empty(t, r.Header.Get("If-None-Match"))
		w.Header().Set("ETag", `"new"`)
		w.WriteHeader(http.StatusNoContent)
	}))

	etag, err := client.PutCalendarObject(context.Background(),
		"/dav/calendar/1.ics", testCalendar(t), `"old"`)
	require.NoError(t, err)
	assert.Equal(t, `"new"`, etag)
}

func TestDecodeCalendarData(t *testing.T) {
	data := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//tests//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:1@example.com\r\n" +
		"DTSTAMP:20240201T090000Z\r\n" +
		"DTSTART:20240202T090000Z\r\n" +
		"SUMMARY:Standup\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	cal, err := DecodeCalendarData(data)
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)
	summary, err := events[0].Props.Text(ical.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "Standup", summary)
}

// emptyResolver answers every lookup with NXDOMAIN, forcing discovery
// onto the well-known URI of the configured host.
type emptyResolver struct{}

func (emptyResolver) LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error) {
	return "", nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (emptyResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func TestNewClientWithBootstrap(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/.well-known/caldav", r.URL.Path)
		http.Redirect(w, r, "/dav/", http.StatusMovedPermanently)
	}))
	t.Cleanup(ts.Close)

	httpClient := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	client, err := NewClientWithBootstrap(context.Background(), httpClient, ts.URL,
		dav.WithResolver(emptyResolver{}))
	require.NoError(t, err)
	assert.Equal(t, "/dav/", client.BaseURL().Path)
}
