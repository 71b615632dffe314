package util

import (
	"regexp"
	"strings"
)

var slugJunk = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses everything non-alphanumeric into dashes.
func Slugify(s string) string {
	s = slugJunk.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(s, "-")
}
