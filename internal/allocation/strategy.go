// Package allocation implements composable token-allocation policies.
// Each strategy is a pure decision function; cross-cutting behaviors
// (history-based adjustment, emergency escalation, bursting) wrap a
// base strategy rather than branching inside it.
package allocation

// Priority is the coarse weight a caller attaches to a request.
type Priority string

const (
	High   Priority = "high"
	Medium Priority = "medium"
	Low    Priority = "low"
)

// UserHistory is an optional snapshot of a user's recent behavior.
type UserHistory struct {
	UsageRatio      float64 // fraction of quota consumed recently, 0..1
	ComplianceScore float64 // how well the user stays within limits, 0..1
}

// SystemLoad is an optional snapshot of overall system pressure.
type SystemLoad struct {
	LoadPercentage float64 // 0..100
}

// Context carries advisory mode flags and measurements. Any field may
// be absent; absence means "not applicable", never an error. A nil
// *Context is valid everywhere.
type Context struct {
	EmergencyOverride bool
	SystemEmergency   bool
	BurstMode         bool
	UserHistory       *UserHistory
	SystemLoad        *SystemLoad
}

func (c *Context) emergency() bool {
	return c != nil && (c.EmergencyOverride || c.SystemEmergency)
}

func (c *Context) burst() bool {
	return c != nil && c.BurstMode
}

// Grant is a strategy decision. Tokens is always within
// [0, available]; Emergency and Burst report whether those layers
// actually fired, so the caller can audit escalations.
type Grant struct {
	Tokens    int64
	Emergency bool
	Burst     bool
}

// Strategy decides how much of the available quota one request gets.
type Strategy interface {
	Allocate(available int64, priority Priority, ctx *Context) Grant
}

func clamp(tokens, available int64) int64 {
	if tokens < 0 {
		return 0
	}
	if tokens > available {
		return available
	}
	return tokens
}
