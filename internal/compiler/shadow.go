package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/rules"
)

// ShadowWarning reports a rule that first-match-wins selection can never
// reach.
//
// Shadowing is a warning, not an error: the stock rule list ships with
// multi_touch_voice behind voice_touch, and callers may reorder at runtime.
type ShadowWarning struct {
	Rule     string   `json:"rule"`     // Unreachable rule
	Shadower string   `json:"shadower"` // Earlier rule that always wins
	Types    []string `json:"types"`    // Shadower's required types
	Message  string   `json:"message"`  // Human-readable description
	Level    string   `json:"level"`    // "warning" or "info"
}

// AnalyzeShadowing checks an ordered rule list for unreachable rules.
//
// Rule j is shadowed by an earlier rule i when i's required types are a
// subset of j's: any candidate set that satisfies j also satisfies i, and
// i is tried first. A rule with no required types shadows everything after
// it and is reported at info level as well.
func AnalyzeShadowing(list []rules.Rule) []ShadowWarning {
	warnings := []ShadowWarning{}

	for j := range list {
		for i := 0; i < j; i++ {
			if !subset(list[i].InputTypes, list[j].InputTypes) {
				continue
			}
			types := typeNames(list[i].InputTypes)
			warnings = append(warnings, ShadowWarning{
				Rule:     list[j].ID,
				Shadower: list[i].ID,
				Types:    types,
				Message:  fmt.Sprintf("rule %s is unreachable: %s matches first on %v", list[j].ID, list[i].ID, types),
				Level:    "warning",
			})
			break
		}
	}

	for _, r := range list {
		if len(r.InputTypes) == 0 {
			warnings = append(warnings, ShadowWarning{
				Rule:    r.ID,
				Message: fmt.Sprintf("rule %s has no input types and matches every candidate set", r.ID),
				Level:   "info",
			})
		}
	}

	return warnings
}

func subset(a, b []ir.InputType) bool {
	for _, t := range a {
		if !slices.Contains(b, t) {
			return false
		}
	}
	return true
}

func typeNames(ts []ir.InputType) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	slices.Sort(out)
	return out
}
