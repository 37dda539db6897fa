package rules

import (
	"fmt"
	"time"

	"github.com/roach88/fusion/internal/ir"
)

// Stamp carries the decision context a fuser needs to build its output:
// the engine's decision sequence number and the decision time.
type Stamp struct {
	Seq int64
	Now time.Time
}

// Fuser turns an ordered list of candidate inputs into one FusedOutput.
//
// Fusers are trusted: the engine does not recover panics. A returned error
// aborts the evaluation cycle and no output is emitted.
type Fuser interface {
	Fuse(inputs []ir.InputEvent, at Stamp) (ir.FusedOutput, error)
}

// FuserFunc adapts a plain function to the Fuser interface.
type FuserFunc func(inputs []ir.InputEvent, at Stamp) (ir.FusedOutput, error)

// Fuse calls f.
func (f FuserFunc) Fuse(inputs []ir.InputEvent, at Stamp) (ir.FusedOutput, error) {
	return f(inputs, at)
}

// Rule is one fusion rule.
//
// TimeWindow, Priority and Resolution describe the rule for display and
// validation. Candidates are chosen by the engine's window and selection is
// by list order, so none of them affects matching.
type Rule struct {
	ID         string
	InputTypes []ir.InputType
	TimeWindow time.Duration
	Priority   int
	Resolution ir.Strategy
	Fuser      Fuser
}

// Matches reports whether every required input type is present.
func (r Rule) Matches(present map[ir.InputType]bool) bool {
	for _, t := range r.InputTypes {
		if !present[t] {
			return false
		}
	}
	return true
}

// Validate checks that a rule can be registered.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.Fuser == nil {
		return fmt.Errorf("rule %s: fuser is required", r.ID)
	}
	for _, t := range r.InputTypes {
		if !t.Valid() {
			return fmt.Errorf("rule %s: unknown input type %q", r.ID, t)
		}
	}
	return nil
}

// RuleSet is an ordered collection of rules.
//
// INVARIANTS:
//   - Rule order is registration order; nothing re-sorts it
//   - Rule IDs are unique
//
// RuleSet is not safe for concurrent use; the engine guards its own copy.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet builds a rule set from rules in order.
func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	rs := &RuleSet{}
	for _, r := range rules {
		if err := rs.Add(r); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// Add appends a rule. Returns an error for an invalid rule or a duplicate id.
func (rs *RuleSet) Add(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	for _, existing := range rs.rules {
		if existing.ID == r.ID {
			return fmt.Errorf("duplicate rule ID: %s", r.ID)
		}
	}
	rs.rules = append(rs.rules, r)
	return nil
}

// Remove deletes the rule with the given id. Returns false if absent.
func (rs *RuleSet) Remove(id string) bool {
	for i, r := range rs.rules {
		if r.ID == id {
			rs.rules = append(rs.rules[:i:i], rs.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Match returns the first rule, in registration order, whose input types are
// all present among types. Rule.Priority is deliberately not consulted.
func (rs *RuleSet) Match(types []ir.InputType) (Rule, bool) {
	present := make(map[ir.InputType]bool, len(types))
	for _, t := range types {
		present[t] = true
	}
	for _, r := range rs.rules {
		if r.Matches(present) {
			return r, true
		}
	}
	return Rule{}, false
}

// List returns a copy of the rules in registration order.
func (rs *RuleSet) List() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}
