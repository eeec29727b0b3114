package process

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	citationMarkerRe = regexp.MustCompile(`\[\d+\]`)
	citationNeededRe = regexp.MustCompile(`(?i)\[citation needed\]`)
	whitespaceRunRe  = regexp.MustCompile(`[\s\p{Z}]+`)
)

// CleanText strips bracketed numeric citation markers and "[citation needed]",
// collapses whitespace runs (including non-breaking spaces) to one space, and trims.
func CleanText(s string) string {
	s = citationMarkerRe.ReplaceAllString(s, "")
	s = citationNeededRe.ReplaceAllString(s, "")
	s = whitespaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// WordCount counts whitespace-separated tokens
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// textWithSeparator concatenates every text node under sel, separating nodes
// with a space so adjacent block elements do not run together.
func textWithSeparator(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}
