package tier

// Tier is the coarse relevance bucket derived from a combined score.
type Tier string

// Relevance tier constants, ordered low to high.
const (
	Low    Tier = "baja"
	Medium Tier = "media"
	High   Tier = "alta"
)

// Default classification thresholds.
const (
	DefaultHighThreshold   = 0.85
	DefaultMediumThreshold = 0.6
)

// Thresholds maps a combined score to a tier. The cutoffs are tunable
// configuration, not hard-coded business law.
type Thresholds struct {
	high   float64
	medium float64
}

// NewThresholds creates tier thresholds. Non-positive or inverted values
// fall back to the defaults.
func NewThresholds(high, medium float64) Thresholds {
	if high <= 0 || medium <= 0 || medium >= high {
		return Thresholds{high: DefaultHighThreshold, medium: DefaultMediumThreshold}
	}
	return Thresholds{high: high, medium: medium}
}

// Classify buckets a combined score.
func (t Thresholds) Classify(score float64) Tier {
	switch {
	case score >= t.high:
		return High
	case score >= t.medium:
		return Medium
	default:
		return Low
	}
}
