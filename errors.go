package dav

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is returned when a request completes with a non-success
// status code that is not handled by the operation's own semantics.
type HTTPError struct {
	Code int
	Err  error
}

func (err *HTTPError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("%v %v: %v", err.Code, http.StatusText(err.Code), err.Err)
	}
	return fmt.Sprintf("%v %v", err.Code, http.StatusText(err.Code))
}

func (err *HTTPError) Unwrap() error {
	return err.Err
}

// HTTPErrorFromError converts err to an *HTTPError, if it is one.
func HTTPErrorFromError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// IsNotFound reports whether err carries an HTTP 404 status.
func IsNotFound(err error) bool {
	httpErr, ok := HTTPErrorFromError(err)
	return ok && httpErr.Code == http.StatusNotFound
}

// ErrInvalidResponse indicates a response that was well-formed XML but is
// missing an element, text or href the protocol requires.
var ErrInvalidResponse = errors.New("webdav: invalid server response")

// Errors returned by CheckSupport.
var (
	// ErrMissingDAVHeader indicates the OPTIONS response carried no DAV
	// header at all.
	ErrMissingDAVHeader = errors.New("webdav: missing DAV header in response")
	// ErrNotAdvertised indicates the server answered but did not list
	// the requested capability in its DAV header.
	ErrNotAdvertised = errors.New("webdav: support is not advertised by the server")
)

// ErrNotAvailable is returned during discovery when the domain declares
// the service decidedly unavailable via an SRV record with target ".".
// See RFC 2782, page 4.
var ErrNotAvailable = errors.New("webdav: the service is decidedly not available")
