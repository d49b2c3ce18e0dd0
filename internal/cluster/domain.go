package cluster

import (
	"net/url"
	"strings"
)

// RegistrableDomain reduces a URL or bare hostname to its last two
// dot-labels. Multi-label public suffixes (co.uk and friends) collapse
// to the suffix itself; acceptable for source weighting since none of
// the weighted sources use one.
func RegistrableDomain(siteOrURL string) string {
	host := siteOrURL

	if strings.Contains(siteOrURL, "://") {
		if u, err := url.Parse(siteOrURL); err == nil && u.Host != "" {
			host = u.Host
		}
	}

	host = strings.ToLower(host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return host
	}

	return strings.Join(parts[len(parts)-2:], ".")
}
