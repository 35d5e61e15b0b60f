package allocation

import "math"

// Dynamic adjustment thresholds and factors.
const (
	complianceBoostMin = 0.85
	usageBoostMax      = 0.7
	usagePenaltyMin    = 0.95
	highLoadPct        = 80.0

	boostFactor   = 1.2
	penaltyFactor = 0.5
)

// Dynamic adjusts a base strategy's grant using optional user-history
// and system-load measurements. With neither present it is a pure
// pass-through for all inputs.
type Dynamic struct {
	inner Strategy
}

// NewDynamic wraps a base strategy with history/load adjustment.
func NewDynamic(inner Strategy) *Dynamic {
	return &Dynamic{inner: inner}
}

func (s *Dynamic) Allocate(available int64, priority Priority, ctx *Context) Grant {
	grant := s.inner.Allocate(available, priority, ctx)
	if ctx == nil || (ctx.UserHistory == nil && ctx.SystemLoad == nil) {
		return grant
	}

	tokens := float64(grant.Tokens)
	if h := ctx.UserHistory; h != nil {
		switch {
		case h.UsageRatio >= usagePenaltyMin:
			tokens *= penaltyFactor
		case h.ComplianceScore > complianceBoostMin && h.UsageRatio < usageBoostMax:
			tokens *= boostFactor
		}
	}
	if l := ctx.SystemLoad; l != nil && l.LoadPercentage >= highLoadPct {
		// Ramp from full allocation at the threshold down to zero at
		// saturation.
		scale := (100 - l.LoadPercentage) / (100 - highLoadPct)
		if scale < 0 {
			scale = 0
		}
		tokens *= scale
	}

	grant.Tokens = clamp(int64(math.Floor(tokens)), available)
	return grant
}
