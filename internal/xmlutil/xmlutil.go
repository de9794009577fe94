// Package xmlutil provides string-level helpers shared by the WebDAV
// client: href percent-encoding, XML text escaping, status-line parsing
// and line-ending restoration for line-oriented payloads.
package xmlutil

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const upperhex = "0123456789ABCDEF"

// hrefSafe reports whether b may appear unescaped in an href. Everything
// that is not alphanumeric is escaped, except '/' and '.'.
func hrefSafe(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '/' || b == '.':
		return true
	}
	return false
}

// QuoteHref percent-encodes a raw path for use inside a request URI or an
// XML body. The input must not already be percent-encoded.
func QuoteHref(href string) string {
	var n int
	for i := 0; i < len(href); i++ {
		if !hrefSafe(href[i]) {
			n++
		}
	}
	if n == 0 {
		return href
	}

	var sb strings.Builder
	sb.Grow(len(href) + 2*n)
	for i := 0; i < len(href); i++ {
		b := href[i]
		if hrefSafe(b) {
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperhex[b>>4])
		sb.WriteByte(upperhex[b&0x0f])
	}
	return sb.String()
}

func unhex(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}

// UnquoteHref percent-decodes an href read from a server response. It
// fails on truncated or malformed escapes and on decoded bytes that do
// not form valid UTF-8.
func UnquoteHref(href string) (string, error) {
	if !strings.Contains(href, "%") {
		if !utf8.ValidString(href) {
			return "", fmt.Errorf("href is not valid utf-8")
		}
		return href, nil
	}

	var sb strings.Builder
	sb.Grow(len(href))
	for i := 0; i < len(href); i++ {
		if href[i] != '%' {
			sb.WriteByte(href[i])
			continue
		}
		if i+2 >= len(href) {
			return "", fmt.Errorf("truncated percent escape in href")
		}
		hi, ok1 := unhex(href[i+1])
		lo, ok2 := unhex(href[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("invalid percent escape %q in href", href[i:i+3])
		}
		sb.WriteByte(hi<<4 | lo)
		i += 2
	}
	decoded := sb.String()
	if !utf8.ValidString(decoded) {
		return "", fmt.Errorf("percent-decoded href is not valid utf-8")
	}
	return decoded, nil
}

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeText escapes the three characters that may not appear in XML text
// content. It is not suitable for attribute values.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// ParseStatusLine extracts the status code from an HTTP status line as
// carried inside a DAV:status element, e.g. "HTTP/1.1 404 Not Found".
func ParseStatusLine(line string) (int, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed status line %q", line)
	}
	code := 0
	for _, r := range parts[1] {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("malformed status code %q", parts[1])
		}
		code = code*10 + int(r-'0')
	}
	if code < 100 || code > 599 {
		return 0, fmt.Errorf("status code %d out of range", code)
	}
	return code, nil
}

// RestoreCRLF rewrites every bare "\n" that is not preceded by "\r" into
// "\r\n". XML parsers normalize line endings per the XML spec, but
// iCalendar and vCard payloads require CRLF line endings.
func RestoreCRLF(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + strings.Count(s, "\n"))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' && (i == 0 || s[i-1] != '\r') {
			sb.WriteString("\r\n")
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
