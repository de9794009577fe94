package dav

import (
	"fmt"
	"net/url"

	"github.com/beevik/etree"
	"github.com/samber/mo"

	"github.com/davware/go-dav/internal/xmlutil"
)

func parseXML(body []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("webdav: failed to parse XML response: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidResponse)
	}
	return root, nil
}

func matchesName(el *etree.Element, name PropertyName) bool {
	return el.Tag == name.Local && el.NamespaceURI() == name.Space
}

// walk visits el and all its descendant elements in document order,
// stopping early when fn returns false.
func walk(el *etree.Element, fn func(*etree.Element) bool) bool {
	if !fn(el) {
		return false
	}
	for _, child := range el.ChildElements() {
		if !walk(child, fn) {
			return false
		}
	}
	return true
}

func findDescendant(el *etree.Element, name PropertyName) *etree.Element {
	var found *etree.Element
	walk(el, func(e *etree.Element) bool {
		if matchesName(e, name) {
			found = e
			return false
		}
		return true
	})
	return found
}

func findDescendantLocal(el *etree.Element, local string) *etree.Element {
	var found *etree.Element
	walk(el, func(e *etree.Element) bool {
		if e.Tag == local {
			found = e
			return false
		}
		return true
	})
	return found
}

func findAllDescendants(el *etree.Element, name PropertyName) []*etree.Element {
	var found []*etree.Element
	walk(el, func(e *etree.Element) bool {
		if matchesName(e, name) {
			found = append(found, e)
		}
		return true
	})
	return found
}

func findChild(el *etree.Element, name PropertyName) *etree.Element {
	for _, child := range el.ChildElements() {
		if matchesName(child, name) {
			return child
		}
	}
	return nil
}

// elementText returns the concatenated character data directly inside
// el. Unlike etree's Text method it includes CDATA sections interleaved
// with plain text.
func elementText(el *etree.Element) string {
	var text string
	for _, child := range el.Child {
		if cd, ok := child.(*etree.CharData); ok {
			text += cd.Data
		}
	}
	return text
}

// checkMultistatus scans all DAV:status descendants of el and returns
// an *HTTPError for the first one carrying a non-successful code. Used
// to surface errors reported inside 207 bodies.
func checkMultistatus(el *etree.Element) error {
	for _, status := range findAllDescendants(el, StatusName) {
		line := elementText(status)
		if line == "" {
			return fmt.Errorf("%w: missing text in status element", ErrInvalidResponse)
		}
		code, err := xmlutil.ParseStatusLine(line)
		if err != nil {
			return fmt.Errorf("webdav: %w", err)
		}
		if code/100 != 2 {
			return &HTTPError{Code: code}
		}
	}
	return nil
}

// parseProp extracts a single property value from a multistatus body.
//
// The lookup first matches namespace and local name exactly, then falls
// back to the local name alone; see PropertyName. If the property is
// absent, any error status inside the body is surfaced instead.
func parseProp(body []byte, name PropertyName) (mo.Option[string], error) {
	root, err := parseXML(body)
	if err != nil {
		return mo.None[string](), err
	}

	prop := findDescendant(root, name)
	if prop == nil {
		prop = findDescendantLocal(root, name.Local)
	}
	if prop != nil {
		if text := elementText(prop); text != "" {
			return mo.Some(text), nil
		}
		return mo.None[string](), nil
	}

	if err := checkMultistatus(root); err != nil {
		return mo.None[string](), err
	}
	return mo.None[string](), fmt.Errorf("%w: property %v missing from response", ErrInvalidResponse, name)
}

// replacePath returns a copy of u with its path replaced by the
// unescaped path p.
func replacePath(u *url.URL, p string) *url.URL {
	return &url.URL{
		Scheme:  u.Scheme,
		User:    u.User,
		Host:    u.Host,
		Path:    p,
		RawPath: xmlutil.QuoteHref(p),
	}
}

// parsePropHref extracts a property containing a single href child and
// resolves it against context. Returns nil if the property exists but
// has no href.
func parsePropHref(body []byte, context *url.URL, name PropertyName) (*url.URL, error) {
	root, err := parseXML(body)
	if err != nil {
		return nil, err
	}

	props := findAllDescendants(root, name)
	if len(props) == 1 {
		hrefEl := findChild(props[0], HrefName)
		if hrefEl == nil {
			return nil, nil
		}
		raw := elementText(hrefEl)
		if raw == "" {
			return nil, nil
		}
		p, err := xmlutil.UnquoteHref(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		return replacePath(context, p), nil
	}

	if err := checkMultistatus(root); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: missing property %v in response but no error", ErrInvalidResponse, name)
}

// parseHrefsProp extracts a property containing any number of href
// children and resolves each against context.
func parseHrefsProp(body []byte, context *url.URL, name PropertyName) ([]*url.URL, error) {
	root, err := parseXML(body)
	if err != nil {
		return nil, err
	}

	props := findAllDescendants(root, name)
	if len(props) == 1 {
		var urls []*url.URL
		for _, child := range props[0].ChildElements() {
			if !matchesName(child, HrefName) {
				continue
			}
			raw := elementText(child)
			if raw == "" {
				continue
			}
			p, err := xmlutil.UnquoteHref(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
			}
			urls = append(urls, replacePath(context, p))
		}
		return urls, nil
	}

	if err := checkMultistatus(root); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: missing property %v in response but no error", ErrInvalidResponse, name)
}

// responseHref extracts and unquotes the DAV:href of a single response
// element.
func responseHref(resp *etree.Element) (string, error) {
	hrefEl := findDescendant(resp, HrefName)
	if hrefEl == nil {
		return "", fmt.Errorf("%w: missing href in response", ErrInvalidResponse)
	}
	raw := elementText(hrefEl)
	if raw == "" {
		return "", fmt.Errorf("%w: missing text in href element", ErrInvalidResponse)
	}
	return xmlutil.UnquoteHref(raw)
}

// parseFindMultipleCollections filters a depth-1 multistatus down to the
// collections whose resourcetype includes only.
func parseFindMultipleCollections(body []byte, only PropertyName) ([]FoundCollection, error) {
	root, err := parseXML(body)
	if err != nil {
		return nil, err
	}

	var collections []FoundCollection
	for _, resp := range findAllDescendants(root, ResponseName) {
		resourceType := findDescendant(resp, ResourceTypeName)
		if resourceType == nil || findChild(resourceType, only) == nil {
			continue
		}

		href, err := responseHref(resp)
		if err != nil {
			return nil, err
		}

		var etag string
		if etagEl := findDescendant(resp, GetETagName); etagEl != nil {
			etag = elementText(etagEl)
		}

		supportsSync := false
		if reportSet := findDescendant(resp, SupportedReportSetName); reportSet != nil {
			supportsSync = findDescendant(reportSet, SyncCollectionName) != nil
		}

		collections = append(collections, FoundCollection{
			Href:         href,
			ETag:         etag,
			SupportsSync: supportsSync,
		})
	}
	return collections, nil
}

// parseListResources extracts the members of a depth-1 multistatus over
// collectionHref, skipping the collection's own entry. The href match
// is done on the unescaped paths.
func parseListResources(body []byte, collectionHref string) ([]ListedResource, error) {
	root, err := parseXML(body)
	if err != nil {
		return nil, err
	}

	var items []ListedResource
	for _, resp := range findAllDescendants(root, ResponseName) {
		href, err := responseHref(resp)
		if err != nil {
			return nil, err
		}
		if href == collectionHref {
			continue
		}

		var details ItemDetails
		if ctEl := findDescendant(resp, GetContentTypeName); ctEl != nil {
			details.ContentType = elementText(ctEl)
		}
		if etagEl := findDescendant(resp, GetETagName); etagEl != nil {
			details.ETag = elementText(etagEl)
		}
		if rtEl := findDescendant(resp, ResourceTypeName); rtEl != nil {
			details.ResourceType = ResourceType{
				IsCollection:  findChild(rtEl, CollectionName) != nil,
				IsCalendar:    findChild(rtEl, CalendarName) != nil,
				IsAddressBook: findChild(rtEl, AddressBookName) != nil,
			}
		}

		items = append(items, ListedResource{Href: href, Details: details})
	}
	return items, nil
}

// parseMultiGet extracts the per-resource outcomes of a multi-get
// REPORT. Responses with a propstat carry data and etag; both are
// mandatory for successful entries. Responses without any propstat
// carry only hrefs plus an error status.
func parseMultiGet(body []byte, dataProp PropertyName) ([]FetchedResource, error) {
	root, err := parseXML(body)
	if err != nil {
		return nil, err
	}

	var fetched []FetchedResource
	for _, resp := range findAllDescendants(root, ResponseName) {
		var status int
		if err := checkMultistatus(resp); err != nil {
			httpErr, ok := HTTPErrorFromError(err)
			if !ok {
				return nil, err
			}
			status = httpErr.Code
		}

		if findDescendant(resp, PropstatName) != nil {
			href, err := responseHref(resp)
			if err != nil {
				return nil, err
			}
			if status != 0 {
				fetched = append(fetched, FetchedResource{Href: href, Status: status})
				continue
			}

			etagEl := findDescendant(resp, GetETagName)
			if etagEl == nil {
				return nil, fmt.Errorf("%w: missing etag in response", ErrInvalidResponse)
			}
			etag := elementText(etagEl)
			if etag == "" {
				return nil, fmt.Errorf("%w: missing text in etag element", ErrInvalidResponse)
			}

			dataEl := findDescendant(resp, dataProp)
			if dataEl == nil {
				return nil, fmt.Errorf("%w: missing %v in response", ErrInvalidResponse, dataProp)
			}
			data := elementText(dataEl)
			if data == "" {
				return nil, fmt.Errorf("%w: missing text in %v element", ErrInvalidResponse, dataProp)
			}

			fetched = append(fetched, FetchedResource{
				Href: href,
				Content: &FetchedResourceContent{
					// XML parsing normalises newlines; the payload
					// formats require CR-LF line endings.
					Data: xmlutil.RestoreCRLF(data),
					ETag: etag,
				},
			})
			continue
		}

		// No propstat: the entry reports a failure for its hrefs.
		if status == 0 {
			return nil, fmt.Errorf("%w: response has no propstat and no error status", ErrInvalidResponse)
		}
		for _, hrefEl := range findAllDescendants(resp, HrefName) {
			raw := elementText(hrefEl)
			if raw == "" {
				continue
			}
			href, err := xmlutil.UnquoteHref(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
			}
			fetched = append(fetched, FetchedResource{Href: href, Status: status})
		}
	}
	return fetched, nil
}
