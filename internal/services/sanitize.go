package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainTextPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup from user-supplied free text and trims surrounding whitespace.
func sanitizeText(value string) string {
	cleaned := plainTextPolicy.Sanitize(strings.TrimSpace(value))
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
