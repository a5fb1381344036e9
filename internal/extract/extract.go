// Package extract converts raw HTML into comparable, whitespace-normalized text.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// strippedTags never contribute text.
const strippedTags = "script, style, noscript, template"

// chromeSelectors are removed before the primary content region is located.
var chromeSelectors = []string{
	"nav",
	"header",
	"footer",
	`[class*="ad"]`,
	`[class*="banner"]`,
	`[class*="popup"]`,
	`[class*="modal"]`,
	`[class*="cookie"]`,
	`[id*="ad"]`,
	`[id*="banner"]`,
	`[id*="popup"]`,
	`[id*="modal"]`,
	`[id*="cookie"]`,
}

// MainSelectors are probed in order; the first match is the primary content region.
var MainSelectors = []string{
	"main",
	"article",
	`[role="main"]`,
	".main-content",
	".content",
	"#content",
	".post-content",
	".entry-content",
}

// Normalize collapses every whitespace run to a single space and trims the result.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Text returns the normalized text of a whole document with scripts and styles removed.
func Text(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(strippedTags).Remove()
	return Normalize(nodeText(doc.Selection)), nil
}

// MainContent strips page chrome and ad-like elements, then returns the text of the
// first primary content region, falling back to the whole body.
func MainContent(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(strippedTags).Remove()
	for _, sel := range chromeSelectors {
		// html and body can carry matching classes; keep the document root.
		doc.Find(sel).Not("html, body").Remove()
	}
	for _, sel := range MainSelectors {
		region := doc.Find(sel).First()
		if region.Length() == 0 {
			continue
		}
		if text := Normalize(nodeText(region)); text != "" {
			return text, nil
		}
	}
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return Normalize(nodeText(root)), nil
}

// nodeText joins text nodes with spaces so adjacent elements never glue words together.
func nodeText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}
