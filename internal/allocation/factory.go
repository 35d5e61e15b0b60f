package allocation

// Options selects which layers a composite strategy carries and how
// the burst layer is parameterized.
type Options struct {
	Dynamic   bool
	Emergency bool
	Burst     bool

	BurstMultiplier float64
	MaxBurstTokens  int64
}

// Factory builds individual strategies or composite chains so call
// sites never duplicate layering decisions.
type Factory struct{}

// NewFactory builds a Factory.
func NewFactory() *Factory { return &Factory{} }

// Priority returns the bare base strategy.
func (f *Factory) Priority() Strategy { return NewPriorityBased() }

// Dynamic returns the base strategy with history/load adjustment.
func (f *Factory) Dynamic() Strategy { return NewDynamic(NewPriorityBased()) }

// Emergency returns the base strategy with emergency escalation.
func (f *Factory) Emergency() Strategy { return NewEmergencyOverride(NewPriorityBased()) }

// Burst returns the base strategy with burst amplification.
func (f *Factory) Burst(multiplier float64, maxTokens int64) Strategy {
	return NewBurst(NewPriorityBased(), multiplier, maxTokens)
}

// Comprehensive builds Burst(Emergency(Dynamic(Priority))), keeping
// only the layers enabled in opts. Layers that are present but whose
// context flags never fire behave as pass-throughs, so enabling a
// layer is always safe.
func (f *Factory) Comprehensive(opts Options) Strategy {
	var s Strategy = NewPriorityBased()
	if opts.Dynamic {
		s = NewDynamic(s)
	}
	if opts.Emergency {
		s = NewEmergencyOverride(s)
	}
	if opts.Burst {
		s = NewBurst(s, opts.BurstMultiplier, opts.MaxBurstTokens)
	}
	return s
}
