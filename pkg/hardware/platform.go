package hardware

import (
	"github.com/fillien/schedsim-go/pkg/simerr"
	"github.com/fillien/schedsim-go/pkg/units"
	"github.com/fillien/schedsim-go/pkg/workload"
)

// Platform owns every hardware and task entity in the simulation. It
// is the sole arena: everything else holds typed indices into it, not
// pointers to each other, so there are no ownership cycles.
type Platform struct {
	processorTypes []ProcessorType
	clockDomains   []*ClockDomain
	powerDomains   []*PowerDomain
	processors     []*Processor
	tasks          []workload.Task

	referenceType ProcessorTypeID
	finalized     bool
}

// NewPlatform returns an empty, mutable Platform.
func NewPlatform() *Platform {
	return &Platform{}
}

func (p *Platform) requireNotFinalized(op string) error {
	if p.finalized {
		return simerr.NewAlreadyFinalizedError("cannot " + op + " after finalize()")
	}
	return nil
}

// AddProcessorType registers a new ProcessorType and returns its id.
func (p *Platform) AddProcessorType(name string, performance, contextSwitchDelay float64) (ProcessorTypeID, error) {
	if err := p.requireNotFinalized("add processor type"); err != nil {
		return 0, err
	}
	id := ProcessorTypeID(len(p.processorTypes))
	p.processorTypes = append(p.processorTypes, NewProcessorType(id, name, performance, contextSwitchDelay))
	return id, nil
}

// AddClockDomain registers a new ClockDomain and returns its id.
func (p *Platform) AddClockDomain(cd *ClockDomain) (ClockDomainID, error) {
	if err := p.requireNotFinalized("add clock domain"); err != nil {
		return 0, err
	}
	id := ClockDomainID(len(p.clockDomains))
	cd.id = id
	p.clockDomains = append(p.clockDomains, cd)
	return id, nil
}

// AddPowerDomain registers a new PowerDomain and returns its id.
func (p *Platform) AddPowerDomain(pd *PowerDomain) (PowerDomainID, error) {
	if err := p.requireNotFinalized("add power domain"); err != nil {
		return 0, err
	}
	id := PowerDomainID(len(p.powerDomains))
	pd.id = id
	p.powerDomains = append(p.powerDomains, pd)
	return id, nil
}

// AddProcessor registers a new Processor belonging to the given type,
// clock domain, and power domain.
func (p *Platform) AddProcessor(pt ProcessorTypeID, cd ClockDomainID, pd PowerDomainID) (ProcessorID, error) {
	if err := p.requireNotFinalized("add processor"); err != nil {
		return 0, err
	}
	id := ProcessorID(len(p.processors))
	proc := newProcessor(id, pt, cd, pd)
	p.processors = append(p.processors, proc)
	p.powerDomains[pd].addMember(id)
	return id, nil
}

// AddTask registers a new Task and returns its id. Finalize locks the
// hardware topology only: tasks arrive from the scenario after the
// platform is built, so they stay addable.
func (p *Platform) AddTask(externalID string, period, relativeDeadline, referenceWCET units.Duration) (workload.TaskID, error) {
	id := workload.TaskID(len(p.tasks))
	task := workload.NewTask(id, externalID, period, relativeDeadline, referenceWCET)
	p.tasks = append(p.tasks, task)
	return id, nil
}

// Finalize locks the topology: the fastest registered ProcessorType
// becomes the reference type, and no further hardware may be added.
// Tasks stay addable (see AddTask).
func (p *Platform) Finalize() error {
	if p.finalized {
		return simerr.NewAlreadyFinalizedError("finalize() called twice")
	}
	best := ProcessorTypeID(0)
	for i, t := range p.processorTypes {
		if t.Performance() > p.processorTypes[best].Performance() {
			best = ProcessorTypeID(i)
		}
	}
	p.referenceType = best
	p.finalized = true
	return nil
}

func (p *Platform) Finalized() bool { return p.finalized }

func (p *Platform) ReferenceType() ProcessorType { return p.processorTypes[p.referenceType] }

func (p *Platform) ProcessorType(id ProcessorTypeID) ProcessorType { return p.processorTypes[id] }
func (p *Platform) ClockDomain(id ClockDomainID) *ClockDomain      { return p.clockDomains[id] }
func (p *Platform) PowerDomain(id PowerDomainID) *PowerDomain      { return p.powerDomains[id] }
func (p *Platform) Processor(id ProcessorID) *Processor            { return p.processors[id] }
func (p *Platform) Task(id workload.TaskID) workload.Task          { return p.tasks[id] }

func (p *Platform) Processors() []*Processor  { return p.processors }
func (p *Platform) Tasks() []workload.Task    { return p.tasks }
func (p *Platform) ClockDomains() []*ClockDomain { return p.clockDomains }
func (p *Platform) PowerDomains() []*PowerDomain { return p.powerDomains }

// ProcessorsIn returns the processors belonging to the given clock
// domain (i.e. one cluster's worth of cores).
func (p *Platform) ProcessorsIn(cd ClockDomainID) []*Processor {
	var out []*Processor
	for _, proc := range p.processors {
		if proc.clockDomain == cd {
			out = append(out, proc)
		}
	}
	return out
}
