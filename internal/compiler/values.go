package compiler

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"
)

// lookup returns the value at path and whether it is present.
func lookup(v cue.Value, path string) (cue.Value, bool) {
	f := v.LookupPath(cue.ParsePath(path))
	return f, f.Exists()
}

// intField reads an optional integer field. Floats are rejected so configs
// stay exact.
func intField(v cue.Value, path string) (int64, bool, error) {
	f, ok := lookup(v, path)
	if !ok {
		return 0, false, nil
	}
	switch f.IncompleteKind() {
	case cue.IntKind:
	case cue.FloatKind, cue.NumberKind:
		return 0, false, &CompileError{
			Field:   path,
			Message: "float values are forbidden - use an integer",
			Pos:     f.Pos(),
		}
	default:
		return 0, false, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("expected int, got %v", f.IncompleteKind()),
			Pos:     f.Pos(),
		}
	}
	n, err := f.Int64()
	if err != nil {
		return 0, false, formatCUEError(err)
	}
	return n, true, nil
}

// millisField reads an optional integer millisecond field as a duration.
func millisField(v cue.Value, path string) (time.Duration, bool, error) {
	n, ok, err := intField(v, path)
	if err != nil || !ok {
		return 0, ok, err
	}
	return time.Duration(n) * time.Millisecond, true, nil
}

func boolField(v cue.Value, path string) (bool, bool, error) {
	f, ok := lookup(v, path)
	if !ok {
		return false, false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, false, formatCUEError(err)
	}
	return b, true, nil
}

func stringField(v cue.Value, path string) (string, bool, error) {
	f, ok := lookup(v, path)
	if !ok {
		return "", false, nil
	}
	s, err := f.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}
