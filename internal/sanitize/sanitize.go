// Package sanitize turns operator- and client-supplied strings into plain
// text before they are stored. Rule names and user display names end up in
// email subjects, push notifications and feed titles, where markup is never
// wanted.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared strip-everything policy.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// PlainText removes all HTML tags (and the contents of script and style
// elements) from input and returns unescaped, trimmed text. Text without
// markup comes back unchanged apart from surrounding whitespace.
func PlainText(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(getPolicy().Sanitize(input)))
}
