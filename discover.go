package dav

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DNSResolver looks up the SRV and TXT records used for service
// discovery. It's implemented by *net.Resolver.
type DNSResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DiscoverableService is a service type that can be discovered via DNS
// records and well-known URIs, per RFC 6764.
type DiscoverableService int

const (
	// ServiceCalDAVS is CalDAV over TLS.
	ServiceCalDAVS DiscoverableService = iota
	// ServiceCalDAV is CalDAV over plain text.
	ServiceCalDAV
	// ServiceCardDAVS is CardDAV over TLS.
	ServiceCardDAVS
	// ServiceCardDAV is CardDAV over plain text.
	ServiceCardDAV
)

// SRVService returns the service label used in SRV and TXT record
// names.
func (s DiscoverableService) SRVService() string {
	switch s {
	case ServiceCalDAVS:
		return "caldavs"
	case ServiceCalDAV:
		return "caldav"
	case ServiceCardDAVS:
		return "carddavs"
	case ServiceCardDAV:
		return "carddav"
	}
	panic("webdav: invalid service")
}

// Scheme returns the URL scheme for connections to this service.
func (s DiscoverableService) Scheme() string {
	switch s {
	case ServiceCalDAVS, ServiceCardDAVS:
		return "https"
	default:
		return "http"
	}
}

// WellKnownPath returns the well-known URI path for the service. See
// RFC 6764 section 5.
func (s DiscoverableService) WellKnownPath() string {
	switch s {
	case ServiceCalDAVS, ServiceCalDAV:
		return "/.well-known/caldav"
	default:
		return "/.well-known/carddav"
	}
}

// DefaultPort returns the port used when neither the base URL nor an
// SRV record specifies one.
func (s DiscoverableService) DefaultPort() uint16 {
	switch s {
	case ServiceCalDAVS, ServiceCardDAVS:
		return 443
	default:
		return 80
	}
}

// CapabilityToken returns the token expected in the DAV header of
// servers supporting this service.
func (s DiscoverableService) CapabilityToken() string {
	switch s {
	case ServiceCalDAVS, ServiceCalDAV:
		return "calendar-access"
	default:
		return "addressbook"
	}
}

func (s DiscoverableService) String() string {
	return s.SRVService()
}

type srvCandidate struct {
	host string
	port uint16
}

func (c srvCandidate) hostPort() string {
	return net.JoinHostPort(c.host, strconv.Itoa(int(c.port)))
}

// resolveSRVCandidates looks up the SRV records for service at host.
// Candidates keep the resolver's priority/weight ordering. With no SRV
// records at all, the original host and port are the sole candidate so
// that well-known lookups still run against bare domains.
func (c *Client) resolveSRVCandidates(ctx context.Context, service DiscoverableService, host string, port uint16) ([]srvCandidate, error) {
	_, addrs, err := c.resolver.LookupSRV(ctx, service.SRVService(), "tcp", host)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			addrs = nil
		} else {
			return nil, fmt.Errorf("webdav: error resolving SRV records: %w", err)
		}
	}

	if len(addrs) == 0 {
		return []srvCandidate{{host: host, port: port}}, nil
	}

	candidates := make([]srvCandidate, 0, len(addrs))
	for _, addr := range addrs {
		target := strings.TrimSuffix(addr.Target, ".")
		if target == "" {
			// A single record with target "." means the service is
			// decidedly not available. See RFC 2782, page 4.
			continue
		}
		candidates = append(candidates, srvCandidate{host: target, port: addr.Port})
	}
	if len(candidates) == 0 {
		return nil, ErrNotAvailable
	}
	return candidates, nil
}

// txtContextPath looks up the context path advertised via a TXT record.
// Returns an empty string when no record exists or the record does not
// carry a well-formed path= attribute; a malformed record is not an
// error.
func (c *Client) txtContextPath(ctx context.Context, service DiscoverableService, host string) (string, error) {
	records, err := c.resolver.LookupTXT(ctx, fmt.Sprintf("_%s._tcp.%s", service.SRVService(), host))
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return "", nil
		}
		return "", fmt.Errorf("webdav: error resolving TXT records: %w", err)
	}
	for _, record := range records {
		if p, ok := strings.CutPrefix(record, "path="); ok && p != "" {
			return p, nil
		}
	}
	return "", nil
}

// FindContextURL discovers the context URL for service in the domain of
// the client's base URL, per RFC 6764.
//
// The SRV candidates are tried in resolver order. A TXT-provided
// context path is verified via CheckSupport before use; a server that
// answers OPTIONS but omits the capability from its DAV header is
// accepted anyway, since some otherwise working servers (e.g.
// Nextcloud) under-advertise. Without a usable TXT path, the well-known
// URI of each candidate is tried.
//
// Returns ErrNotAvailable when the domain declares the service
// unavailable, and (nil, nil) when discovery simply found nothing; the
// caller should then keep its configured URL.
func (c *Client) FindContextURL(ctx context.Context, service DiscoverableService) (*url.URL, error) {
	host := c.endpoint.Hostname()
	if host == "" {
		return nil, fmt.Errorf("webdav: base URL has no host")
	}
	port := service.DefaultPort()
	if p := c.endpoint.Port(); p != "" {
		parsed, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("webdav: invalid port in base URL: %w", err)
		}
		port = uint16(parsed)
	}

	candidates, err := c.resolveSRVCandidates(ctx, service, host, port)
	if err != nil {
		return nil, err
	}

	contextPath, err := c.txtContextPath(ctx, service, host)
	if err != nil {
		return nil, err
	}

	if contextPath != "" {
		for _, candidate := range candidates {
			u := &url.URL{
				Scheme: service.Scheme(),
				Host:   candidate.hostPort(),
				Path:   contextPath,
			}
			err := c.CheckSupport(ctx, u, service.CapabilityToken())
			if err == nil || errors.Is(err, ErrNotAdvertised) {
				return u, nil
			}
			c.logger.Debug("discovery candidate rejected",
				"service", service.String(),
				"url", u.String(),
				"error", err)
		}
	}

	for _, candidate := range candidates {
		u, err := c.FindContextPath(ctx, service, candidate.host, candidate.port)
		if err != nil {
			c.logger.Debug("well-known lookup failed",
				"service", service.String(),
				"host", candidate.hostPort(),
				"error", err)
			continue
		}
		if u != nil {
			return u, nil
		}
	}

	return nil, nil
}

// Bootstrap discovers the context URL for service and rewrites the
// client's base URL to it. The base URL is left untouched when
// discovery finds nothing; that is the documented fallback, not an
// error. Call at most once, before issuing other requests.
func (c *Client) Bootstrap(ctx context.Context, service DiscoverableService) error {
	u, err := c.FindContextURL(ctx, service)
	if err != nil {
		return err
	}
	if u != nil {
		if u.Path == "" {
			u.Path = "/"
		}
		c.logger.Debug("discovered context URL", "service", service.String(), "url", u.String())
		c.endpoint = u
	}
	return nil
}
