package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fillien/schedsim-go/pkg/units"
)

func perProcessorStates() []CState {
	return []CState{
		{Level: 0, Scope: ScopePerProcessor, WakeLatency: 0, Power: units.Power(1000)},
		{Level: 1, Scope: ScopePerProcessor, WakeLatency: units.Duration(0.001), Power: units.Power(100)},
	}
}

func domainWideStates() []CState {
	return []CState{
		{Level: 0, Scope: ScopePerProcessor, WakeLatency: 0, Power: units.Power(1000)},
		{Level: 1, Scope: ScopeDomainWide, WakeLatency: units.Duration(0.01), Power: units.Power(10)},
	}
}

func TestPowerDomainAchievedPerProcessor(t *testing.T) {
	pd := NewPowerDomain(0, perProcessorStates())
	pd.addMember(0)
	pd.addMember(1)

	pd.RequestCState(0, 1)
	pd.RequestCState(1, 0)

	assert.Equal(t, 1, pd.Achieved(0).Level)
	assert.Equal(t, 0, pd.Achieved(1).Level)
}

func TestPowerDomainAchievedDomainWideWaitsForAllMembers(t *testing.T) {
	pd := NewPowerDomain(0, domainWideStates())
	pd.addMember(0)
	pd.addMember(1)

	pd.RequestCState(0, 1)
	pd.RequestCState(1, 0)

	assert.Equal(t, 0, pd.Achieved(0).Level, "domain-wide level requires every member to request it")

	pd.RequestCState(1, 1)
	assert.Equal(t, 1, pd.Achieved(0).Level)
	assert.Equal(t, 1, pd.Achieved(1).Level)
}

func TestPowerDomainDeepestLevel(t *testing.T) {
	pd := NewPowerDomain(0, perProcessorStates())
	assert.Equal(t, 1, pd.DeepestLevel())
}
