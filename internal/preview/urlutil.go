package preview

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Hostname returns the lowercased host of rawURL without port, or "".
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// IsHTTPURL reports whether rawURL is an absolute http(s) URL with a host.
func IsHTTPURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// AbsoluteURL resolves ref against base. Values already starting with
// "http" are returned unchanged.
func AbsoluteURL(ref string, base *url.URL) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "http") || base == nil {
		return ref
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// bareHost strips a leading "www." from host.
func bareHost(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// siteNameFromHost derives a display name such as "Example.com" from a host.
// A Caser holds state, so one is built per call.
func siteNameFromHost(host string) string {
	return cases.Title(language.Und).String(bareHost(host))
}
