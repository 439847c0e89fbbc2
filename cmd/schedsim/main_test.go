package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlatformJSON = `{
  "clusters": [
    {"nb_procs": 1, "frequencies": [1000], "effective_freq": 1000, "perf_score": 1.0}
  ]
}`

const testScenarioJSON = `{
  "tasks": [
    {"id": 1, "utilization": 0.3, "period": 10, "jobs": [{"arrival": 0, "duration": 3}]}
  ]
}`

func writeFixture(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunSucceedsAndWritesTrace(t *testing.T) {
	platformPath := writeFixture(t, "platform.json", testPlatformJSON)
	scenarioPath := writeFixture(t, "scenario.json", testScenarioJSON)
	tracePath := filepath.Join(t.TempDir(), "trace.jsonl")

	code := run([]string{
		"-platform=" + platformPath,
		"-scenario=" + scenarioPath,
		"-trace=" + tracePath,
		"-until=20",
	})
	assert.Equal(t, exitOK, code)

	data, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "job_arrival")
	assert.Contains(t, string(data), "sim_finished")
}

func TestRunReturnsConfigErrorOnMissingRequiredFlags(t *testing.T) {
	code := run([]string{})
	assert.Equal(t, exitConfigError, code)
}

func TestRunReturnsLoaderErrorOnMissingPlatformFile(t *testing.T) {
	scenarioPath := writeFixture(t, "scenario.json", testScenarioJSON)
	code := run([]string{
		"-platform=/does/not/exist.json",
		"-scenario=" + scenarioPath,
	})
	assert.Equal(t, exitLoaderError, code)
}

func TestRunReturnsConfigErrorOnUnknownAllocator(t *testing.T) {
	platformPath := writeFixture(t, "platform.json", testPlatformJSON)
	scenarioPath := writeFixture(t, "scenario.json", testScenarioJSON)
	code := run([]string{
		"-platform=" + platformPath,
		"-scenario=" + scenarioPath,
		"-allocator=bogus",
	})
	assert.Equal(t, exitConfigError, code)
}

func TestRunWritesTraceDatabase(t *testing.T) {
	platformPath := writeFixture(t, "platform.json", testPlatformJSON)
	scenarioPath := writeFixture(t, "scenario.json", testScenarioJSON)
	dbPath := filepath.Join(t.TempDir(), "trace.db")

	code := run([]string{
		"-platform=" + platformPath,
		"-scenario=" + scenarioPath,
		"-db=" + dbPath,
		"-until=20",
	})
	assert.Equal(t, exitOK, code)

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestRunRequiresDBForServe(t *testing.T) {
	platformPath := writeFixture(t, "platform.json", testPlatformJSON)
	scenarioPath := writeFixture(t, "scenario.json", testScenarioJSON)

	code := run([]string{
		"-platform=" + platformPath,
		"-scenario=" + scenarioPath,
		"-serve=127.0.0.1:0",
		"-until=20",
	})
	assert.Equal(t, exitConfigError, code)
}

func TestScenarioFixtureParsesAsValidJSON(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(testScenarioJSON), &raw))
}
