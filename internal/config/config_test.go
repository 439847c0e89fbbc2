package config

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsAppliesDefaults(t *testing.T) {
	cfg, err := ParseFlags(flag.NewFlagSet("test", flag.ContinueOnError), []string{
		"-platform=platform.json",
		"-scenario=scenario.json",
	})
	require.NoError(t, err)
	assert.Equal(t, "edf", cfg.Scheduler)
	assert.Equal(t, "first_fit", cfg.Allocator)
	assert.Equal(t, "capacity_bound", cfg.Admission)
	assert.Equal(t, "cbs", cfg.Reclamation)
	assert.Equal(t, "continue", cfg.DeadlineMiss)
	assert.Equal(t, 1e9, cfg.Until)
}

func TestParseFlagsOverridesDefaults(t *testing.T) {
	cfg, err := ParseFlags(flag.NewFlagSet("test", flag.ContinueOnError), []string{
		"-platform=p.json",
		"-scenario=s.json",
		"-allocator=best_fit",
		"-policy=ffa",
		"-admission=gfb",
		"-reclamation=grub",
		"-deadline-miss=abort_job",
		"-seed=42",
		"-until=100",
	})
	require.NoError(t, err)
	assert.Equal(t, "best_fit", cfg.Allocator)
	assert.Equal(t, "ffa", cfg.Policy)
	assert.Equal(t, "gfb", cfg.Admission)
	assert.Equal(t, "grub", cfg.Reclamation)
	assert.Equal(t, "abort_job", cfg.DeadlineMiss)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 100.0, cfg.Until)
}

func TestParseFlagsRequiresPlatformAndScenario(t *testing.T) {
	_, err := ParseFlags(flag.NewFlagSet("test", flag.ContinueOnError), []string{})
	assert.Error(t, err)
}

func TestParseFlagsRejectsUnknownAdmission(t *testing.T) {
	_, err := ParseFlags(flag.NewFlagSet("test", flag.ContinueOnError), []string{
		"-platform=p.json",
		"-scenario=s.json",
		"-admission=bogus",
	})
	assert.Error(t, err)
}

func TestParseFlagsRejectsUnknownPolicy(t *testing.T) {
	_, err := ParseFlags(flag.NewFlagSet("test", flag.ContinueOnError), []string{
		"-platform=p.json",
		"-scenario=s.json",
		"-policy=bogus",
	})
	assert.Error(t, err)
}

func TestParseFlagsRejectsNegativeSeed(t *testing.T) {
	_, err := ParseFlags(flag.NewFlagSet("test", flag.ContinueOnError), []string{
		"-platform=p.json",
		"-scenario=s.json",
		"-seed=-1",
	})
	assert.Error(t, err)
}

func TestParseFlagsRejectsNonPositiveUntil(t *testing.T) {
	_, err := ParseFlags(flag.NewFlagSet("test", flag.ContinueOnError), []string{
		"-platform=p.json",
		"-scenario=s.json",
		"-until=0",
	})
	assert.Error(t, err)
}

func TestStringIncludesCoreFields(t *testing.T) {
	cfg, err := ParseFlags(flag.NewFlagSet("test", flag.ContinueOnError), []string{
		"-platform=p.json",
		"-scenario=s.json",
	})
	require.NoError(t, err)
	s := cfg.String()
	assert.Contains(t, s, "p.json")
	assert.Contains(t, s, "s.json")
	assert.Contains(t, s, "edf")
}
