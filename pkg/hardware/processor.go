package hardware

import "github.com/fillien/schedsim-go/pkg/workload"

// ProcessorID is an arena index into Platform.processors.
type ProcessorID int

// ProcState is a Processor's run state.
type ProcState int

const (
	StateSleep ProcState = iota
	StateIdle
	StateRunning
	StateChange
)

func (s ProcState) String() string {
	switch s {
	case StateSleep:
		return "sleep"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateChange:
		return "change"
	default:
		return "unknown"
	}
}

// Processor belongs to exactly one ClockDomain, one PowerDomain, and
// has one ProcessorType. It holds at most one currently executing job.
type Processor struct {
	id            ProcessorID
	procType      ProcessorTypeID
	clockDomain   ClockDomainID
	powerDomain   PowerDomainID
	state         ProcState
	currentJob    *workload.Job
	requestedCState int
}

func newProcessor(id ProcessorID, pt ProcessorTypeID, cd ClockDomainID, pd PowerDomainID) *Processor {
	return &Processor{id: id, procType: pt, clockDomain: cd, powerDomain: pd, state: StateIdle}
}

func (p *Processor) ID() ProcessorID              { return p.id }
func (p *Processor) ProcessorType() ProcessorTypeID { return p.procType }
func (p *Processor) ClockDomain() ClockDomainID   { return p.clockDomain }
func (p *Processor) PowerDomain() PowerDomainID   { return p.powerDomain }
func (p *Processor) State() ProcState             { return p.state }
func (p *Processor) CurrentJob() *workload.Job    { return p.currentJob }
func (p *Processor) RequestedCState() int         { return p.requestedCState }

// Dispatch assigns job to this processor and transitions it to Running.
func (p *Processor) Dispatch(job *workload.Job) {
	p.currentJob = job
	p.state = StateRunning
	p.requestedCState = 0
}

// Release clears the current job and transitions to Idle.
func (p *Processor) Release() {
	p.currentJob = nil
	p.state = StateIdle
}

// RequestCState records the sleep level this processor asks for while
// Idle and updates State to match: a level above 0 puts it in Sleep,
// and level 0 returns it to Idle when it holds no job (see
// PowerDomain.Achieved for the effective level once applied).
func (p *Processor) RequestCState(level int) {
	p.requestedCState = level
	if level > 0 {
		p.state = StateSleep
	} else if p.currentJob == nil {
		p.state = StateIdle
	}
}
