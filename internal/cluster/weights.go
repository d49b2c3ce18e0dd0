package cluster

// Source credibility weights by registrable domain. Regulators beat
// wire services beat everything else.
var sourceWeights = map[string]float64{
	"sec.gov":       1.0,
	"reuters.com":   0.9,
	"bloomberg.com": 0.9,
	"ft.com":        0.85,
	"wsj.com":       0.85,
	"cnbc.com":      0.8,
}

const defaultSourceWeight = 0.5

// SourceWeight returns the credibility weight of a source URL or
// hostname.
func SourceWeight(siteOrURL string) float64 {
	if w, ok := sourceWeights[RegistrableDomain(siteOrURL)]; ok {
		return w
	}

	return defaultSourceWeight
}
