// Package rules defines fusion rules and the built-in fusers.
//
// A Rule declares which channels it fuses and delegates the actual
// combination to a Fuser. Rules live in a RuleSet, an ordered list in which
// the first rule whose input types are all present wins. Rule.Priority is
// carried for callers and configs but is never consulted for selection;
// registration order alone decides.
//
// The closed set of built-in fusers covers six common channel pairings.
// Callers register their own behaviour with FuserFunc.
package rules
