// Package dav provides a WebDAV client implementing the extensions used
// by calendar and contacts synchronization (CalDAV, RFC 4791, and
// CardDAV, RFC 6352), including DNS-based service discovery (RFC 6764).
//
// The generic engine lives in this package; the caldav and carddav
// packages supply the protocol-specific property names and request
// bodies on top of it.
//
// # Hrefs
//
// All hrefs returned by this library have been percent-decoded. All
// functions taking an href parameter expect it NOT to be
// percent-encoded; the library quotes hrefs itself before embedding
// them into request URIs or XML bodies.
//
// # Service discovery
//
// Discovery does not validate DNSSEC signatures. Only use it with a
// validating resolver, or with domains served from a trusted network.
package dav

import "fmt"

// Depth indicates whether a request applies to the resource's members.
// It's defined in RFC 4918 section 10.2.
type Depth int

const (
	// DepthZero indicates that the request applies only to the resource.
	DepthZero Depth = 0
	// DepthOne indicates that the request applies to the resource and its
	// internal members only.
	DepthOne Depth = 1
	// DepthInfinity indicates that the request applies to the resource and all
	// of its members.
	DepthInfinity Depth = -1
)

// ParseDepth parses a Depth header.
func ParseDepth(s string) (Depth, error) {
	switch s {
	case "0":
		return DepthZero, nil
	case "1":
		return DepthOne, nil
	case "infinity":
		return DepthInfinity, nil
	}
	return 0, fmt.Errorf("webdav: invalid Depth value")
}

// String formats the depth.
func (d Depth) String() string {
	switch d {
	case DepthZero:
		return "0"
	case DepthOne:
		return "1"
	case DepthInfinity:
		return "infinity"
	}
	panic("webdav: invalid Depth value")
}

// ResourceType describes the resource types advertised for a listed
// resource. All flags are false when the resourcetype property is absent.
type ResourceType struct {
	IsCollection  bool
	IsCalendar    bool
	IsAddressBook bool
}

// ItemDetails carries the metadata returned when listing resources. It
// does not include the resource data itself. ContentType and ETag are
// empty when the server did not report them.
type ItemDetails struct {
	ContentType  string
	ETag         string
	ResourceType ResourceType
}

// ListedResource is a single member of a listed collection.
type ListedResource struct {
	// Href is not percent-encoded.
	Href    string
	Details ItemDetails
}

// FoundCollection is a collection found inside a home set.
type FoundCollection struct {
	// Href is not percent-encoded.
	Href string
	ETag string
	// SupportsSync indicates support for the sync-collection report.
	// See RFC 6578.
	SupportsSync bool
}

// FetchedResourceContent is the payload of a successfully fetched
// resource.
type FetchedResourceContent struct {
	Data string
	ETag string
}

// FetchedResource is a single entry of a multi-get response. Exactly one
// of Content and Status is set: a resource that failed to fetch carries
// the failure status code instead of data.
type FetchedResource struct {
	// Href is the absolute path of the resource on the server, not
	// percent-encoded.
	Href    string
	Content *FetchedResourceContent
	Status  int
}
