package allocation

import "math"

// emergencyShare is granted regardless of priority when an emergency
// flag is raised.
const emergencyShare = 0.8

// EmergencyOverride short-circuits normal priority math when the
// request or the system declares an emergency, granting a fixed high
// share of whatever is available. The grant is marked so the caller
// can audit the escalation.
type EmergencyOverride struct {
	inner Strategy
}

// NewEmergencyOverride wraps a base strategy with emergency handling.
func NewEmergencyOverride(inner Strategy) *EmergencyOverride {
	return &EmergencyOverride{inner: inner}
}

func (s *EmergencyOverride) Allocate(available int64, priority Priority, ctx *Context) Grant {
	if !ctx.emergency() {
		return s.inner.Allocate(available, priority, ctx)
	}
	if available <= 0 {
		return Grant{Emergency: true}
	}
	tokens := int64(math.Floor(float64(available) * emergencyShare))
	return Grant{Tokens: clamp(tokens, available), Emergency: true}
}
