package allocation

import "math"

// Priority shares of the available quota. Unknown priorities get the
// low share rather than zero, so a malformed request still terminates.
const (
	highShare   = 0.5
	mediumShare = 0.3
	lowShare    = 0.2
)

// PriorityBased is the base strategy: a fixed share of the available
// quota per priority level.
type PriorityBased struct{}

// NewPriorityBased builds the base strategy.
func NewPriorityBased() *PriorityBased { return &PriorityBased{} }

func (s *PriorityBased) Allocate(available int64, priority Priority, _ *Context) Grant {
	if available <= 0 {
		return Grant{}
	}
	share := lowShare
	switch priority {
	case High:
		share = highShare
	case Medium:
		share = mediumShare
	}
	tokens := int64(math.Floor(float64(available) * share))
	return Grant{Tokens: clamp(tokens, available)}
}
