package dav

import (
	"fmt"

	"github.com/samber/mo"

	"github.com/davware/go-dav/internal/xmlutil"
)

// renderEmptyElement renders an empty XML element for a property name.
func renderEmptyElement(name PropertyName) string {
	if name.Space == "" {
		return fmt.Sprintf("<%s/>", name.Local)
	}
	return fmt.Sprintf("<%s xmlns=%q/>", name.Local, name.Space)
}

// renderElementWithText renders an XML element with optional escaped
// text content.
func renderElementWithText(name PropertyName, text mo.Option[string]) string {
	t, ok := text.Get()
	if !ok {
		return renderEmptyElement(name)
	}
	if name.Space == "" {
		return fmt.Sprintf("<%[1]s>%[2]s</%[1]s>", name.Local, xmlutil.EscapeText(t))
	}
	return fmt.Sprintf("<%[1]s xmlns=%[2]q>%[3]s</%[1]s>", name.Local, name.Space, xmlutil.EscapeText(t))
}
