package hardware

// ProcessorTypeID is an arena index into Platform.processorTypes.
type ProcessorTypeID int

// ProcessorType is immutable after construction: performance and
// context-switch delay never change once the Platform has been built.
// Performance is dimensionless and relative to the fastest type on the
// owning Platform, which is chosen at finalize() time.
type ProcessorType struct {
	id                 ProcessorTypeID
	name               string
	performance        float64
	contextSwitchDelay float64 // seconds
}

// NewProcessorType constructs a ProcessorType. Performance must be > 0.
func NewProcessorType(id ProcessorTypeID, name string, performance, contextSwitchDelay float64) ProcessorType {
	return ProcessorType{
		id:                 id,
		name:               name,
		performance:        performance,
		contextSwitchDelay: contextSwitchDelay,
	}
}

func (t ProcessorType) ID() ProcessorTypeID       { return t.id }
func (t ProcessorType) Name() string              { return t.name }
func (t ProcessorType) Performance() float64      { return t.performance }
func (t ProcessorType) ContextSwitchDelay() float64 { return t.contextSwitchDelay }

// WCETOn converts a reference-type WCET into this type's units:
// wcet_on(type) = reference_wcet * reference_perf / type_perf.
func (t ProcessorType) WCETOn(referenceWCET, referencePerf float64) float64 {
	return referenceWCET * referencePerf / t.performance
}
