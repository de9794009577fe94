package carddav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/emersion/go-vcard"
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

func testCard() vcard.Card {
	return vcard.Card{
		"VERSION": []*vcard.Field{{Value: "3.0"}},
		"UID":     []*vcard.Field{{Value: "urn:uuid:4fbe8971-0bc3-424c-9c26-36c3e1eff6b1"}},
		"FN":      []*vcard.Field{{Value: "Alice Gopher"}},
		"EMAIL":   []*vcard.Field{{Value: "alice@example.com"}},
	}
}

func TestServiceForURL(t *testing.T) {
	for input, want := range map[string]dav.DiscoverableService{
		"https://example.com":    dav.ServiceCardDAVS,
		"carddavs://example.com": dav.ServiceCardDAVS,
		"http://example.com":     dav.ServiceCardDAV,
		"carddav://example.com":  dav.ServiceCardDAV,
	} {
		u, err := url.Parse(input)
		require.NoError(t, err)
		service, err := ServiceForURL(u)
		require.NoError(t, err)
		assert.Equal(t, want, service, "input %q", input)
	}

	u, err := url.Parse("gopher://example.com")
	require.NoError(t, err)
	_, err = ServiceForURL(u)
	assert.Error(t, err)
}

func TestGetAddressBookResourcesRequestBody(t *testing.T) {
	var gotBody string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "REPORT", r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = string(body)

		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, `<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
			<response>
				<href>/dav/contacts/alice.vcf</href>
				<propstat>
					<prop>
						<getetag>"v1"</getetag>
						<C:address-data>BEGIN:VCARD
VERSION:3.0
FN:Alice Gopher
END:VCARD
</C:address-data>
					</prop>
					<status>HTTP/1.1 200 OK</status>
				</propstat>
			</response>
		</multistatus>`)
	}))

	fetched, err := client.GetAddressBookResources(context.Background(),
		"/dav/contacts/", []string{"/dav/contacts/alice.vcf"})
	require.NoError(t, err)

	assert.Equal(t,
		`<C:addressbook-multiget xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">`+
			`<D:prop><D:getetag/><C:address-data/></D:prop>`+
			`<D:href>/dav/contacts/alice.vcf</D:href>`+
			`</C:addressbook-multiget>`,
		gotBody)

	require.Len(t, fetched, 1)
	require.NotNil(t, fetched[0].Content)
	assert.Equal(t, `"v1"`, fetched[0].Content.ETag)
	assert.Equal(t,
		"BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Alice Gopher\r\nEND:VCARD\r\n",
		fetched[0].Content.Data)
}

func TestFindAddressBooks(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "PROPFIND", r.Method)
		assert.Equal(t, "1", r.Header.Get("Depth"))

		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, `<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
			<response>
				<href>/dav/books/alice/</href>
				<propstat>
					<prop><resourcetype><collection/></resourcetype></prop>
					<status>HTTP/1.1 200 OK</status>
				</propstat>
			</response>
			<response>
				<href>/dav/books/alice/contacts/</href>
				<propstat>
					<prop>
						<resourcetype><collection/><C:addressbook/></resourcetype>
						<getetag>"b-1"</getetag>
					</prop>
					<status>HTTP/1.1 200 OK</status>
				</propstat>
			</response>
		</multistatus>`)
	}))

	books, err := client.FindAddressBooks(context.Background(), "/dav/books/alice/")
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "/dav/books/alice/contacts/", books[0].Href)
	assert.Equal(t, `"b-1"`, books[0].ETag)
	assert.False(t, books[0].SupportsSync)
}

func TestFindAddressBookHomeSet(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, `<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
			<response>
				<href>/principals/alice/</href>
				<propstat>
					<prop>
						<C:addressbook-home-set><href>/dav/books/alice/</href></C:addressbook-home-set>
					</prop>
					<status>HTTP/1.1 200 OK</status>
				</propstat>
			</response>
		</multistatus>`)
	}))

	homeSets, err := client.FindAddressBookHomeSet(context.Background(), "/principals/alice/")
	require.NoError(t, err)
	require.Len(t, homeSets, 1)
	assert.Equal(t, "/dav/books/alice/", homeSets[0].Path)
}

func TestCreateAddressObject(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "*", r.Header.Get("If-None-Match"))
		assert.Equal(t, MIMEType, r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "BEGIN:VCARD")
		assert.Contains(t, string(body), "FN:Alice Gopher")

		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusCreated)
	}))

	href, etag, err := client.CreateAddressObject(context.Background(),
		"/dav/contacts/", testCard())
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, etag)
	assert.True(t, strings.HasPrefix(href, "/dav/contacts/"))
	assert.True(t, strings.HasSuffix(href, ".vcf"))
}

func TestCreateAddressObjectFetchesMissingETag(t *testing.T) {
	var putHref string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			putHref = r.URL.Path
			// No ETag header in the response.
			w.WriteHeader(http.StatusCreated)
		case "PROPFIND":
			w.WriteHeader(http.StatusMultiStatus)
			fmt.Fprintf(w, `<multistatus xmlns="DAV:">
				<response>
					<href>%s</href>
					<propstat>
						<prop><getetag>"after"</getetag></prop>
						<status>HTTP/1.1 200 OK</status>
					</propstat>
				</response>
			</multistatus>`, r.URL.Path)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	href, etag, err := client.CreateAddressObject(context.Background(),
		"/dav/contacts/", testCard())
	require.NoError(t, err)
	assert.Equal(t, `"after"`, etag)
	assert.Equal(t, putHref, href)
}

func TestPutAddressObjectUpdate(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"old"`, r.Header.Get("If-Match"))
		w.Header().Set("ETag", `"new"`)
		w.WriteHeader(http.StatusNoContent)
	}))

	etag, err := client.PutAddressObject(context.Background(),
		"/dav/contacts/alice.vcf", testCard(), `"old"`)
	require.NoError(t, err)
	assert.Equal(t, `"new"`, etag)
}

func TestDecodeAddressData(t *testing.T) {
	data := "BEGIN:VCARD\r\n" +
		"VERSION:3.0\r\n" +
		"UID:urn:uuid:4fbe8971-0bc3-424c-9c26-36c3e1eff6b1\r\n" +
		"FN:Alice Gopher\r\n" +
		"EMAIL:alice@example.com\r\n" +
		"END:VCARD\r\n"

	card, err := DecodeAddressData(data)
	require.NoError(t, err)
	assert.Equal(t, "Alice Gopher", card.PreferredValue(vcard.FieldFormattedName))
	assert.Equal(t, "alice@example.com", card.PreferredValue(vcard.FieldEmail))
}
