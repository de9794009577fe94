package dav

import "fmt"

// XML namespaces used by WebDAV and its calendaring/contacts extensions.
const (
	NamespaceWebDAV  = "DAV:"
	NamespaceCalDAV  = "urn:ietf:params:xml:ns:caldav"
	NamespaceCardDAV = "urn:ietf:params:xml:ns:carddav"
	NamespaceApple   = "http://apple.com/ns/ical/"
)

// PropertyName identifies an XML element by namespace URI and local name.
//
// Two names are equal when both fields match exactly. A documented
// exception exists on single-property lookups, which fall back to
// matching by local name only; some servers answer in the wrong
// namespace (e.g. cyrus-imapd, https://github.com/cyrusimap/cyrus-imapd/issues/4489).
type PropertyName struct {
	Space string
	Local string
}

func (n PropertyName) String() string {
	if n.Space == "" {
		return n.Local
	}
	return fmt.Sprintf("{%s}%s", n.Space, n.Local)
}

// Names of common WebDAV elements and properties.
var (
	CollectionName           = PropertyName{NamespaceWebDAV, "collection"}
	DisplayNameName          = PropertyName{NamespaceWebDAV, "displayname"}
	GetContentTypeName       = PropertyName{NamespaceWebDAV, "getcontenttype"}
	GetETagName              = PropertyName{NamespaceWebDAV, "getetag"}
	HrefName                 = PropertyName{NamespaceWebDAV, "href"}
	ResourceTypeName         = PropertyName{NamespaceWebDAV, "resourcetype"}
	ResponseName             = PropertyName{NamespaceWebDAV, "response"}
	StatusName               = PropertyName{NamespaceWebDAV, "status"}
	PropstatName             = PropertyName{NamespaceWebDAV, "propstat"}
	SupportedReportSetName   = PropertyName{NamespaceWebDAV, "supported-report-set"}
	SyncCollectionName       = PropertyName{NamespaceWebDAV, "sync-collection"}
	CurrentUserPrincipalName = PropertyName{NamespaceWebDAV, "current-user-principal"}
)

// Names of CalDAV properties, plus the non-standard but widespread Apple
// calendar properties.
var (
	CalendarName            = PropertyName{NamespaceCalDAV, "calendar"}
	CalendarDescriptionName = PropertyName{NamespaceCalDAV, "calendar-description"}
	CalendarHomeSetName     = PropertyName{NamespaceCalDAV, "calendar-home-set"}
	CalendarDataName        = PropertyName{NamespaceCalDAV, "calendar-data"}
	CalendarColorName       = PropertyName{NamespaceApple, "calendar-color"}
	CalendarOrderName       = PropertyName{NamespaceApple, "calendar-order"}
)

// Names of CardDAV properties.
var (
	AddressBookName            = PropertyName{NamespaceCardDAV, "addressbook"}
	AddressBookDescriptionName = PropertyName{NamespaceCardDAV, "addressbook-description"}
	AddressBookHomeSetName     = PropertyName{NamespaceCardDAV, "addressbook-home-set"}
	AddressDataName            = PropertyName{NamespaceCardDAV, "address-data"}
)
