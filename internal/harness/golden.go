package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/testutil"
)

// Snapshot is the golden form of a scenario's outputs.
//
// Confidence is carried as integer basis points and time as a millisecond
// offset from the scenario start, since canonical JSON has no floats.
type Snapshot struct {
	Scenario string
	Outputs  []ir.FusedOutput
	Errors   []string
}

// Canonical renders the snapshot as canonical JSON.
func (s Snapshot) Canonical() ([]byte, error) {
	outputs := make(ir.IRArray, len(s.Outputs))
	for i, out := range s.Outputs {
		outputs[i] = snapshotOutput(out)
	}

	obj := ir.IRObject{
		"scenario": ir.IRString(s.Scenario),
		"outputs":  outputs,
	}
	if len(s.Errors) > 0 {
		obj["errors"] = ir.Strings(s.Errors...)
	}
	return ir.MarshalCanonical(obj)
}

func snapshotOutput(out ir.FusedOutput) ir.IRObject {
	types := make([]string, len(out.OriginalInputs))
	for i, in := range out.OriginalInputs {
		types[i] = string(in.Type)
	}

	obj := ir.IRObject{
		"id":            ir.IRString(out.ID),
		"kind":          ir.IRString(out.Data.Kind),
		"command":       ir.IRString(out.Data.Command),
		"confidence_bp": ir.IRInt(ir.BasisPoints(out.Confidence)),
		"input_ids":     ir.Strings(ir.InputIDs(out.OriginalInputs)...),
		"input_types":   ir.Strings(types...),
		"offset_ms":     ir.IRInt(out.Timestamp.Sub(testutil.Epoch).Milliseconds()),
	}
	if out.RuleID != "" {
		obj["rule_id"] = ir.IRString(out.RuleID)
	}
	if len(out.Data.Fields) > 0 {
		obj["fields"] = out.Data.Fields
	}
	if out.Data.Payload != nil {
		obj["payload"] = out.Data.Payload.IR()
	}
	return obj
}

// RunWithGolden executes a scenario and compares its outputs against a
// golden file at testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if outputs don't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := SnapshotOf(name, result).Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)

	return nil
}

// SnapshotOf builds the golden snapshot of a result.
func SnapshotOf(name string, result *Result) Snapshot {
	return Snapshot{
		Scenario: name,
		Outputs:  result.Outputs,
		Errors:   result.EngineErrors,
	}
}

// GoldenPath returns the golden file used by the suite runner for a
// scenario file: golden/<scenario name>.golden beside the scenario.
func GoldenPath(scenarioFile, name string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// WriteGolden writes the result's snapshot to path, creating its directory.
func WriteGolden(path, name string, result *Result) error {
	data, err := SnapshotOf(name, result).Canonical()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// CompareGolden reports whether the result matches the golden file at path.
// found is false when there is no golden file.
func CompareGolden(path, name string, result *Result) (found, match bool, err error) {
	want, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := SnapshotOf(name, result).Canonical()
	if err != nil {
		return true, false, err
	}
	return true, bytes.Equal(want, got), nil
}
