package linkextract

import "regexp"

// junkPatterns identify links that are not message content: app stores,
// deep-link redirectors, downloads, CDN assets, tracking pixels and
// analytics endpoints. Order is irrelevant; any match disqualifies.
var junkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)apps\.apple\.com`),
	regexp.MustCompile(`(?i)play\.google\.com`),
	regexp.MustCompile(`(?i)onelink\.me`),
	regexp.MustCompile(`(?i)app\.link`),
	regexp.MustCompile(`(?i)/download`),
	regexp.MustCompile(`(?i)cdnjs\.cloudflare\.com`),
	regexp.MustCompile(`(?i)ea\.twimg\.com`),
	regexp.MustCompile(`(?i)pbs\.twimg\.com/profile`),
	regexp.MustCompile(`(?i)\.(png|jpg|jpeg|gif|svg|ico|css|js)(\?|$)`),
	regexp.MustCompile(`(?i)/pixel`),
	regexp.MustCompile(`(?i)google-analytics\.com`),
	regexp.MustCompile(`(?i)doubleclick\.net`),
}

// IsJunk reports whether u matches any junk pattern.
func IsJunk(u string) bool {
	for _, p := range junkPatterns {
		if p.MatchString(u) {
			return true
		}
	}
	return false
}

// SelectPrimary returns the first candidate that is not junk. When every
// candidate is junk it returns the first candidate anyway, so a non-empty
// input always yields a link. ok is false only for empty input.
func SelectPrimary(candidates []string) (link string, ok bool) {
	if len(candidates) == 0 {
		return "", false
	}
	for _, u := range candidates {
		if !IsJunk(u) {
			return u, true
		}
	}
	return candidates[0], true
}

// PrimaryLink runs extraction and selection over one message's bodies.
func PrimaryLink(text, htmlBody string) (string, bool) {
	return SelectPrimary(ExtractURLs(text, htmlBody))
}
