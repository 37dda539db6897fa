package harness

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/fusion/internal/ir"
)

// confidenceTolerance absorbs float rounding in expected confidences.
const confidenceTolerance = 1e-6

// checkExpectations compares the result against the scenario's
// expectations and returns one message per mismatch.
func checkExpectations(s *Scenario, r *Result) []string {
	var errs []string

	if s.ExpectOutputs != nil && len(r.Outputs) != *s.ExpectOutputs {
		errs = append(errs, fmt.Sprintf("expected %d outputs, got %d%s",
			*s.ExpectOutputs, len(r.Outputs), describeOutputs(r.Outputs)))
	}
	if s.ExpectErrors != nil && len(r.EngineErrors) != *s.ExpectErrors {
		errs = append(errs, fmt.Sprintf("expected %d engine errors, got %d: %v",
			*s.ExpectErrors, len(r.EngineErrors), r.EngineErrors))
	}

	for i, want := range s.Expect {
		if i >= len(r.Outputs) {
			errs = append(errs, fmt.Sprintf("expect[%d]: no output at this position", i))
			continue
		}
		errs = append(errs, matchOutput(i, want, r.Outputs[i])...)
	}

	return errs
}

// matchOutput checks the set fields of want against got.
func matchOutput(i int, want Expectation, got ir.FusedOutput) []string {
	var errs []string
	mismatch := func(field string, want, got any) {
		errs = append(errs, fmt.Sprintf("expect[%d].%s: want %v, got %v", i, field, want, got))
	}

	if want.Command != "" && want.Command != got.Data.Command {
		mismatch("command", fmt.Sprintf("%q", want.Command), fmt.Sprintf("%q", got.Data.Command))
	}
	if want.Kind != "" && want.Kind != got.Data.Kind {
		mismatch("kind", want.Kind, got.Data.Kind)
	}
	if want.Rule != "" && want.Rule != got.RuleID {
		mismatch("rule", want.Rule, got.RuleID)
	}
	if want.Confidence != nil && math.Abs(*want.Confidence-got.Confidence) > confidenceTolerance {
		mismatch("confidence", *want.Confidence, got.Confidence)
	}
	if want.InputCount != 0 && want.InputCount != len(got.OriginalInputs) {
		mismatch("input_count", want.InputCount, len(got.OriginalInputs))
	}
	if len(want.InputTypes) > 0 {
		gotTypes := make([]string, len(got.OriginalInputs))
		for j, in := range got.OriginalInputs {
			gotTypes[j] = string(in.Type)
		}
		if !slices.Equal(want.InputTypes, gotTypes) {
			mismatch("input_types", want.InputTypes, gotTypes)
		}
	}

	return errs
}

func describeOutputs(outs []ir.FusedOutput) string {
	if len(outs) == 0 {
		return ""
	}
	s := ":"
	for _, o := range outs {
		s += fmt.Sprintf(" [%s %q]", o.Data.Kind, o.Data.Command)
	}
	return s
}
