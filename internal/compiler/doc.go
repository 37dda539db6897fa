// Package compiler turns declarative CUE fusion configuration into engine
// configuration and rules.
//
// A configuration directory holds CUE files with two top-level sections:
//
//	config: {
//		simultaneous_input_window_ms: 2000
//		max_input_buffer:             10
//		debounce_ms:                  500
//		default_priority: {voice: 1, touch: 4}
//		default_rules: true
//	}
//
//	rule: point_and_speak: {
//		fuser:       "voice_touch"
//		input_types: ["voice", "touch"]
//		priority:    1
//	}
//
// Rules reference built-in fusers by kind and are evaluated in declaration
// order. Durations are integer milliseconds; floats are rejected.
package compiler
