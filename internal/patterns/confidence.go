package patterns

import (
	"math"
	"time"
)

const (
	MinConfidence = 0.1
	MaxConfidence = 1.0

	DefaultBaseConfidence = 0.8
	DefaultDecayRate      = 0.01 // per day

	groundingBoostStep = 0.03
	maxGroundingBoost  = 0.3
)

// CurrentConfidence derives a pattern's effective confidence at now.
//
// Patterns without confidence data score 1.0. Otherwise the base decays
// linearly with the (fractional) number of days since the last successful
// grounding, gets a boost of 0.03 per grounding capped at 0.3, and is clamped
// to [0.1, 1.0]. A pattern that was never grounded does not decay.
func CurrentConfidence(p Pattern, now time.Time) float64 {
	c := p.Confidence
	if c == nil {
		return MaxConfidence
	}

	decayed := c.Base
	if c.LastGrounded != nil {
		days := now.Sub(*c.LastGrounded).Hours() / 24
		if days > 0 {
			decayed -= c.DecayRate * days
		}
	}

	boost := math.Min(maxGroundingBoost, float64(c.GroundingCount)*groundingBoostStep)
	return clamp(decayed+boost, MinConfidence, MaxConfidence)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
