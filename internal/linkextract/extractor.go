// Package linkextract finds candidate URLs in message bodies and picks the
// single primary link that represents a message.
package linkextract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// urlPattern matches free-standing http(s) URLs: a run of characters that
// are neither whitespace nor brackets, quotes or other delimiters.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)

// ExtractURLs returns the distinct http(s) URLs found in the plain-text
// and HTML bodies, in first-seen order. Text matches come first, then
// anchor targets, then free-standing URLs in the HTML source. Either body
// may be empty.
func ExtractURLs(text, htmlBody string) []string {
	var raw []string

	if text != "" {
		raw = append(raw, urlPattern.FindAllString(text, -1)...)
	}

	if htmlBody != "" {
		raw = append(raw, anchorTargets(htmlBody)...)
		raw = append(raw, urlPattern.FindAllString(htmlBody, -1)...)
	}

	return dedupe(raw)
}

// anchorTargets returns the href of every <a> element in document order.
func anchorTargets(htmlBody string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil
	}

	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, strings.TrimSpace(href))
		}
	})
	return hrefs
}

// dedupe strips angle-bracket quoting residue, drops anything that is not
// an http URL, and removes repeats while preserving order.
func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var result []string
	for _, u := range urls {
		clean := strings.TrimRight(u, ">")
		if !strings.HasPrefix(clean, "http") || seen[clean] {
			continue
		}
		seen[clean] = true
		result = append(result, clean)
	}
	return result
}
