package allocation

import "math"

// DefaultBurstMultiplier applies when a Burst layer is built without
// an explicit multiplier.
const DefaultBurstMultiplier = 2.0

// Burst multiplies the wrapped strategy's grant while burst mode is
// requested, clipped to an optional absolute ceiling and always to
// the available quota.
type Burst struct {
	inner      Strategy
	multiplier float64
	maxTokens  int64 // 0 means no ceiling
}

// NewBurst wraps a base strategy with burst amplification.
// multiplier <= 0 selects DefaultBurstMultiplier; maxTokens == 0
// disables the ceiling.
func NewBurst(inner Strategy, multiplier float64, maxTokens int64) *Burst {
	if multiplier <= 0 {
		multiplier = DefaultBurstMultiplier
	}
	return &Burst{inner: inner, multiplier: multiplier, maxTokens: maxTokens}
}

func (s *Burst) Allocate(available int64, priority Priority, ctx *Context) Grant {
	grant := s.inner.Allocate(available, priority, ctx)
	if !ctx.burst() {
		return grant
	}
	tokens := int64(math.Floor(float64(grant.Tokens) * s.multiplier))
	if s.maxTokens > 0 && tokens > s.maxTokens {
		tokens = s.maxTokens
	}
	grant.Tokens = clamp(tokens, available)
	grant.Burst = true
	return grant
}
