// Package ioformat is the boundary layer between on-disk JSON and the
// simulation core: it decodes Platform/Scenario documents with
// encoding/json, validates them with go-playground/validator/v10
// struct tags plus hand-written semantic checks, and builds the
// hardware.Platform / scheduler.Cluster graph the engine drives. It
// also provides the mandatory JSON-lines trace writer.
package ioformat

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/fillien/schedsim-go/pkg/simerr"
	"github.com/fillien/schedsim-go/pkg/units"
)

// ClusterDoc is one entry of the Platform JSON's "clusters" array.
type ClusterDoc struct {
	NbProcs       int       `json:"nb_procs" validate:"required,gt=0"`
	Frequencies   []float64 `json:"frequencies" validate:"required,min=1,dive,gt=0"`
	EffectiveFreq float64   `json:"effective_freq" validate:"required,gt=0"`
	PerfScore     float64   `json:"perf_score" validate:"required,gt=0"`
	UTarget       float64   `json:"u_target,omitempty"`
	PowerModel    []float64 `json:"power_model,omitempty" validate:"omitempty,max=4"`
}

// PlatformDoc is the root of a Platform JSON document.
type PlatformDoc struct {
	Clusters []ClusterDoc `json:"clusters" validate:"required,min=1,dive"`
}

// DecodePlatform parses raw Platform JSON bytes without building any
// runtime object, so callers can inspect/re-serialize a document
// without constructing an Engine.
func DecodePlatform(data []byte) (*PlatformDoc, error) {
	var doc PlatformDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, simerr.NewLoaderError("decoding platform JSON", err)
	}
	if err := validatePlatformDoc(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReadPlatformFile loads and validates a Platform JSON file.
func ReadPlatformFile(path string) (*PlatformDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.NewLoaderError("reading platform file", err)
	}
	return DecodePlatform(data)
}

// Encode re-serializes a PlatformDoc, used to verify the round-trip
// law (load then re-serialize is idempotent).
func (doc *PlatformDoc) Encode() ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

func validatePlatformDoc(doc *PlatformDoc) error {
	v := validator.New()
	if err := v.Struct(doc); err != nil {
		return simerr.NewLoaderError("platform document failed schema validation", err)
	}
	for i, c := range doc.Clusters {
		if !sort.SliceIsSorted(c.Frequencies, func(a, b int) bool { return c.Frequencies[a] > c.Frequencies[b] }) {
			return simerr.NewLoaderError(fmt.Sprintf("cluster %d: frequencies must be descending", i), nil)
		}
		found := false
		for _, f := range c.Frequencies {
			if f == c.EffectiveFreq {
				found = true
				break
			}
		}
		if !found {
			return simerr.NewLoaderError(fmt.Sprintf("cluster %d: effective_freq %.3f is not in the supported frequency set", i, c.EffectiveFreq), nil)
		}
	}
	return nil
}

// evalPowerModel evaluates P(f) = sum(power_model[i] * f^i).
func evalPowerModel(coeffs []float64, f units.Frequency) units.Power {
	if len(coeffs) == 0 {
		return 0
	}
	total := 0.0
	pow := 1.0
	for _, a := range coeffs {
		total += a * pow
		pow *= float64(f)
	}
	return units.Power(total)
}

// PowerModel exposes evalPowerModel for pkg/metrics' energy
// integration, which needs to evaluate the same polynomial at
// whatever frequency a cluster was running at over each trace
// interval.
func PowerModel(coeffs []float64, f units.Frequency) units.Power {
	return evalPowerModel(coeffs, f)
}
