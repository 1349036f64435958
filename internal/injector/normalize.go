package injector

import (
	"net/url"
	"strings"
)

// NormalizeURL makes hrefs comparable: relative references are resolved
// against base, scheme and host are lowercased, the fragment is dropped and a
// trailing slash is ignored. Unparseable input is returned trimmed.
func NormalizeURL(href, base string) string {
	href = strings.TrimSpace(href)
	u, err := url.Parse(href)
	if err != nil {
		return href
	}

	if !u.IsAbs() && base != "" {
		if b, baseErr := url.Parse(base); baseErr == nil {
			u = b.ResolveReference(u)
		}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}
