package allocation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityShares(t *testing.T) {
	s := NewPriorityBased()

	tests := []struct {
		name      string
		available int64
		priority  Priority
		want      int64
	}{
		{"high", 1000, High, 500},
		{"medium", 1000, Medium, 300},
		{"low", 1000, Low, 200},
		{"high rounds down", 999, High, 499},
		{"medium rounds down", 7, Medium, 2},
		{"zero available", 0, High, 0},
		{"unknown priority gets low share", 1000, Priority("???"), 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := s.Allocate(tt.available, tt.priority, nil)
			assert.Equal(t, tt.want, g.Tokens)
			assert.False(t, g.Emergency)
			assert.False(t, g.Burst)
		})
	}
}

func TestPriorityNeverExceedsAvailable(t *testing.T) {
	s := NewPriorityBased()
	for _, available := range []int64{0, 1, 2, 3, 10, 99, 1000, math.MaxInt32} {
		for _, p := range []Priority{High, Medium, Low} {
			g := s.Allocate(available, p, nil)
			assert.LessOrEqual(t, g.Tokens, available)
			assert.GreaterOrEqual(t, g.Tokens, int64(0))
		}
	}
}

func TestDynamicEmptyContextIsPassThrough(t *testing.T) {
	base := NewPriorityBased()
	dyn := NewDynamic(base)

	for _, available := range []int64{0, 1, 50, 999, 100000} {
		for _, p := range []Priority{High, Medium, Low} {
			assert.Equal(t, base.Allocate(available, p, nil), dyn.Allocate(available, p, nil))
			empty := &Context{}
			assert.Equal(t, base.Allocate(available, p, empty), dyn.Allocate(available, p, empty))
		}
	}
}

func TestDynamicAdjustments(t *testing.T) {
	dyn := NewDynamic(NewPriorityBased())

	t.Run("compliant moderate user is boosted", func(t *testing.T) {
		ctx := &Context{UserHistory: &UserHistory{UsageRatio: 0.4, ComplianceScore: 0.9}}
		g := dyn.Allocate(1000, High, ctx)
		assert.Equal(t, int64(600), g.Tokens) // 500 * 1.2
	})

	t.Run("near-exhausted user is penalized", func(t *testing.T) {
		ctx := &Context{UserHistory: &UserHistory{UsageRatio: 0.97, ComplianceScore: 0.9}}
		g := dyn.Allocate(1000, High, ctx)
		assert.Equal(t, int64(250), g.Tokens) // 500 * 0.5
	})

	t.Run("high load scales down", func(t *testing.T) {
		ctx := &Context{SystemLoad: &SystemLoad{LoadPercentage: 90}}
		g := dyn.Allocate(1000, High, ctx)
		assert.Equal(t, int64(250), g.Tokens) // 500 * (100-90)/20
	})

	t.Run("saturated load grants nothing", func(t *testing.T) {
		ctx := &Context{SystemLoad: &SystemLoad{LoadPercentage: 100}}
		g := dyn.Allocate(1000, High, ctx)
		assert.Zero(t, g.Tokens)
	})

	t.Run("moderate load leaves grant alone", func(t *testing.T) {
		ctx := &Context{SystemLoad: &SystemLoad{LoadPercentage: 50}}
		g := dyn.Allocate(1000, High, ctx)
		assert.Equal(t, int64(500), g.Tokens)
	})

	t.Run("never exceeds available", func(t *testing.T) {
		ctx := &Context{UserHistory: &UserHistory{UsageRatio: 0.1, ComplianceScore: 0.99}}
		g := dyn.Allocate(1, High, ctx)
		assert.LessOrEqual(t, g.Tokens, int64(1))
	})
}

func TestEmergencyOverride(t *testing.T) {
	s := NewEmergencyOverride(NewPriorityBased())

	t.Run("grants fixed share regardless of priority", func(t *testing.T) {
		for _, p := range []Priority{High, Medium, Low} {
			g := s.Allocate(1000, p, &Context{EmergencyOverride: true})
			assert.Equal(t, int64(800), g.Tokens)
			assert.True(t, g.Emergency)
		}
	})

	t.Run("system emergency takes the same path", func(t *testing.T) {
		g := s.Allocate(1000, Low, &Context{SystemEmergency: true})
		assert.Equal(t, int64(800), g.Tokens)
		assert.True(t, g.Emergency)
	})

	t.Run("no flags delegates", func(t *testing.T) {
		g := s.Allocate(1000, High, &Context{})
		assert.Equal(t, int64(500), g.Tokens)
		assert.False(t, g.Emergency)
	})

	t.Run("nothing available", func(t *testing.T) {
		g := s.Allocate(0, High, &Context{EmergencyOverride: true})
		assert.Zero(t, g.Tokens)
		assert.True(t, g.Emergency)
	})
}

func TestBurst(t *testing.T) {
	t.Run("multiplies the base grant", func(t *testing.T) {
		s := NewBurst(NewPriorityBased(), 2.0, 0)
		g := s.Allocate(1000, High, &Context{BurstMode: true})
		assert.Equal(t, int64(1000), g.Tokens) // 500 * 2, clipped to available
		assert.True(t, g.Burst)
	})

	t.Run("respects the ceiling", func(t *testing.T) {
		s := NewBurst(NewPriorityBased(), 4.0, 700)
		g := s.Allocate(1000, High, &Context{BurstMode: true})
		assert.Equal(t, int64(700), g.Tokens)
	})

	t.Run("ceiling bounds every burst grant", func(t *testing.T) {
		s := NewBurst(NewPriorityBased(), 10.0, 64)
		for _, available := range []int64{0, 10, 100, 10000} {
			g := s.Allocate(available, High, &Context{BurstMode: true})
			assert.LessOrEqual(t, g.Tokens, int64(64))
			assert.LessOrEqual(t, g.Tokens, available)
		}
	})

	t.Run("no burst mode delegates", func(t *testing.T) {
		s := NewBurst(NewPriorityBased(), 2.0, 0)
		g := s.Allocate(1000, High, nil)
		assert.Equal(t, int64(500), g.Tokens)
		assert.False(t, g.Burst)
	})
}

func TestComprehensiveChain(t *testing.T) {
	f := NewFactory()
	s := f.Comprehensive(Options{
		Dynamic:         true,
		Emergency:       true,
		Burst:           true,
		BurstMultiplier: 2.0,
	})

	t.Run("quiet context behaves like priority", func(t *testing.T) {
		g := s.Allocate(1000, Medium, &Context{})
		assert.Equal(t, int64(300), g.Tokens)
		assert.False(t, g.Emergency)
		assert.False(t, g.Burst)
	})

	t.Run("emergency wins inside the chain", func(t *testing.T) {
		g := s.Allocate(1000, Low, &Context{EmergencyOverride: true})
		assert.Equal(t, int64(800), g.Tokens)
		assert.True(t, g.Emergency)
	})

	t.Run("burst amplifies emergency", func(t *testing.T) {
		g := s.Allocate(1000, Low, &Context{EmergencyOverride: true, BurstMode: true})
		assert.Equal(t, int64(1000), g.Tokens) // 800 * 2 clipped
		assert.True(t, g.Emergency)
		assert.True(t, g.Burst)
	})

	t.Run("disabled layers are absent", func(t *testing.T) {
		bare := f.Comprehensive(Options{})
		g := bare.Allocate(1000, High, &Context{EmergencyOverride: true, BurstMode: true})
		assert.Equal(t, int64(500), g.Tokens)
		assert.False(t, g.Emergency)
		assert.False(t, g.Burst)
	})
}
