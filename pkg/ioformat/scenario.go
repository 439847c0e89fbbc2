package ioformat

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/fillien/schedsim-go/pkg/engine"
	"github.com/fillien/schedsim-go/pkg/hardware"
	"github.com/fillien/schedsim-go/pkg/simerr"
	"github.com/fillien/schedsim-go/pkg/units"
	"github.com/fillien/schedsim-go/pkg/workload"
)

// JobDoc is one release of a task: its arrival offset and the actual
// (possibly sub-WCET) execution time of that instance.
type JobDoc struct {
	Arrival  float64 `json:"arrival" validate:"gte=0"`
	Duration float64 `json:"duration" validate:"gte=0"`
}

// TaskDoc is one entry of the Scenario JSON's "tasks" array. The
// scenario wire format carries no explicit relative deadline: every
// task is implicit-deadline (RelativeDeadline == Period).
type TaskDoc struct {
	ID          uint64   `json:"id"`
	Utilization float64  `json:"utilization" validate:"required,gt=0,lte=1"`
	Period      float64  `json:"period" validate:"required,gt=0"`
	Jobs        []JobDoc `json:"jobs" validate:"dive"`
}

// ScenarioDoc is the root of a Scenario JSON document.
type ScenarioDoc struct {
	Tasks []TaskDoc `json:"tasks" validate:"required,min=1,dive"`
}

// DecodeScenario parses raw Scenario JSON bytes without registering
// anything into a Platform, so callers can round-trip a document
// independent of any running simulation.
func DecodeScenario(data []byte) (*ScenarioDoc, error) {
	var doc ScenarioDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, simerr.NewLoaderError("decoding scenario JSON", err)
	}
	if err := validateScenarioDoc(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReadScenarioFile loads and validates a Scenario JSON file.
func ReadScenarioFile(path string) (*ScenarioDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.NewLoaderError("reading scenario file", err)
	}
	return DecodeScenario(data)
}

// Encode re-serializes a ScenarioDoc.
func (doc *ScenarioDoc) Encode() ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

func validateScenarioDoc(doc *ScenarioDoc) error {
	v := validator.New()
	if err := v.Struct(doc); err != nil {
		return simerr.NewLoaderError("scenario document failed schema validation", err)
	}
	seen := make(map[uint64]bool)
	for _, t := range doc.Tasks {
		if seen[t.ID] {
			return simerr.NewLoaderError(fmt.Sprintf("duplicate task id %d", t.ID), nil)
		}
		seen[t.ID] = true
	}
	return nil
}

// LoadedTask pairs a scenario task's platform-assigned id with its raw
// job list, so arrivals can be posted once the engine (not just the
// platform) is available.
type LoadedTask struct {
	PlatformID workload.TaskID
	Jobs       []JobDoc
}

// LoadTasks registers every task in doc into platform (implicit
// deadline, ReferenceWCET = Utilization*Period) and returns one
// LoadedTask per scenario task, in document order.
func LoadTasks(platform *hardware.Platform, doc *ScenarioDoc) ([]LoadedTask, error) {
	out := make([]LoadedTask, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		wcet := units.Duration(t.Utilization * t.Period)
		period := units.Duration(t.Period)
		taskID, err := platform.AddTask(strconv.FormatUint(t.ID, 10), period, period, wcet)
		if err != nil {
			return nil, err
		}
		out = append(out, LoadedTask{PlatformID: taskID, Jobs: t.Jobs})
	}
	return out, nil
}

// PostArrivals walks every loaded task's job list and posts a
// JobArrival event for each at its scenario-relative arrival time,
// with duration taken straight from the JobDoc (a job's actual
// execution time, which may be less than the task's WCET).
func PostArrivals(eng *engine.Engine, loaded []LoadedTask) {
	for _, lt := range loaded {
		for _, j := range lt.Jobs {
			eng.PostJobArrival(units.TimePoint(j.Arrival), lt.PlatformID, units.Duration(j.Duration))
		}
	}
}
