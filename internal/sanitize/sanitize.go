// Package sanitize strips markup from user-supplied text before it is
// stored. Account display names are rendered in the editor chrome and page
// footers, so they must never carry HTML.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strict     *bluemonday.Policy
	strictOnce sync.Once
)

// getStrictPolicy returns the shared policy that removes every element.
func getStrictPolicy() *bluemonday.Policy {
	strictOnce.Do(func() {
		strict = bluemonday.StrictPolicy()
	})
	return strict
}

// PlainText removes all HTML from input, collapses runs of whitespace to a
// single space, and trims the result. Entities produced by the sanitizer
// are decoded so "Tom & Jerry" is stored as typed; templates escape on
// output.
func PlainText(input string) string {
	if input == "" {
		return ""
	}
	cleaned := html.UnescapeString(getStrictPolicy().Sanitize(input))
	return strings.Join(strings.Fields(cleaned), " ")
}
