package utils

import "github.com/microcosm-cc/bluemonday"

var (
	contentPolicy = bluemonday.UGCPolicy()
	textPolicy    = bluemonday.StrictPolicy()
)

// Sanitize cleans user-generated HTML for rich-content bodies.
func Sanitize(input string) string {
	return contentPolicy.Sanitize(input)
}

// SanitizeText strips all markup; used for titles and plain fields.
func SanitizeText(input string) string {
	return textPolicy.Sanitize(input)
}
