package extraction

import "math"

// Gate maps a confidence score onto a ReviewTier.
type Gate struct {
	autoAccept float64
	review     float64
}

// NewGate builds a gate. Thresholds must satisfy 0 <= review <= autoAccept <= 1.
func NewGate(autoAccept, review float64) (Gate, error) {
	if math.IsNaN(autoAccept) || autoAccept < 0 || autoAccept > 1 {
		return Gate{}, &ConfigError{Field: "auto_accept_threshold", Reason: "must be within [0, 1]"}
	}
	if math.IsNaN(review) || review < 0 || review > 1 {
		return Gate{}, &ConfigError{Field: "review_threshold", Reason: "must be within [0, 1]"}
	}
	if review > autoAccept {
		return Gate{}, &ConfigError{Field: "review_threshold", Reason: "must not exceed auto_accept_threshold"}
	}
	return Gate{autoAccept: autoAccept, review: review}, nil
}

// DefaultGate uses the default thresholds (0.9 and 0.7).
func DefaultGate() Gate {
	return Gate{autoAccept: DefaultAutoAcceptThreshold, review: DefaultReviewThreshold}
}

// Classify returns the tier for a confidence score.
func (g Gate) Classify(confidence float64) ReviewTier {
	switch {
	case confidence >= g.autoAccept:
		return TierAutoAccept
	case confidence >= g.review:
		return TierNeedsReview
	default:
		return TierRejected
	}
}

// Apply tags the item with its tier.
func (g Gate) Apply(item *ActionItem) {
	item.Tier = g.Classify(item.Confidence)
}

// Thresholds returns the auto-accept and review thresholds.
func (g Gate) Thresholds() (autoAccept, review float64) {
	return g.autoAccept, g.review
}
