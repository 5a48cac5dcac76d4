package server

import (
	"html"
	"regexp"
	"strings"
)

// boldHeading matches an optionally list-numbered bold run, e.g.
// "1. **Packing**" or "**Summary**". Model output uses these as section
// headings, so the fragment promotes them to <h2>.
var boldHeading = regexp.MustCompile(`(\d*\.?\s?)\*\*(.*?)\*\*`)

// renderReply converts a model reply into the HTML fragment the UI inserts
// verbatim. The text is escaped first; only markup produced here survives.
func renderReply(text string) string {
	escaped := html.EscapeString(text)
	withHeadings := boldHeading.ReplaceAllString(escaped, "<h2>$2</h2>")
	return strings.ReplaceAll(withHeadings, "\n", "<br>\n")
}
