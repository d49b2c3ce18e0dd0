package cluster

import (
	"math"
	"time"
)

// Hotness factor weights. They sum to 1, so hotness stays in [0,1] as
// long as every factor does.
const (
	weightNovelty      = 0.30
	weightSource       = 0.20
	weightVelocity     = 0.20
	weightConfirmation = 0.15
	weightMateriality  = 0.10
	weightBreadth      = 0.05

	noveltyFreshHours = 6
	noveltyFresh      = 1.0
	noveltyStale      = 0.3

	confirmationSaturation = 4

	// Placeholders until entity aggregation feeds these factors.
	materialityPlaceholder = 0.3
	breadthPlaceholder     = 0.0
)

// Score computes the hotness factors of a cluster from its aggregates.
// domains maps registrable domain to the number of member documents
// from it.
func Score(now, firstTime time.Time, domains map[string]int) (map[string]float64, float64) {
	ageHours := 9999.0
	if !firstTime.IsZero() {
		ageHours = now.Sub(firstTime).Hours()
	}

	novelty := noveltyStale
	if ageHours <= noveltyFreshHours {
		novelty = noveltyFresh
	}

	var source float64

	var count int
	for dom, n := range domains {
		if w := SourceWeight(dom); w > source {
			source = w
		}

		count += n
	}

	velocity := sigmoid(math.Log(float64(count) + 1))
	confirmation := math.Min(float64(len(domains))/confirmationSaturation, 1.0)

	factors := map[string]float64{
		"novelty":      novelty,
		"source":       source,
		"velocity":     velocity,
		"confirmation": confirmation,
		"materiality":  materialityPlaceholder,
		"breadth":      breadthPlaceholder,
	}

	hotness := weightNovelty*novelty +
		weightSource*source +
		weightVelocity*velocity +
		weightConfirmation*confirmation +
		weightMateriality*materialityPlaceholder +
		weightBreadth*breadthPlaceholder

	return factors, hotness
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
