// Package harness runs fusion scenarios against a real engine on simulated
// time.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: point_and_speak
//	description: "Voice plus touch fuses into one command"
//	default_rules: true
//	config:
//	  simultaneous_input_window_ms: 2000
//	  max_input_buffer: 10
//	  debounce_ms: 500
//	steps:
//	  - at_ms: 0
//	    type: voice
//	    data: "turn on"
//	  - at_ms: 100
//	    type: touch
//	    data: { target: lamp }
//	expect_outputs: 1
//	expect:
//	  - command: "turn on lamp"
//	    kind: voice_touch_command
//	    rule: voice_touch_fusion
//
// Step data is either a string (the channel's text field) or an object in
// the channel payload's JSON shape. A config_dir entry loads a CUE config
// directory, resolved relative to the scenario file.
//
// # Deterministic Execution
//
// Every run uses a fresh engine with:
//   - testutil.FakeScheduler starting at testutil.Epoch
//   - engine.FixedGenerator input ids ("input-1", "input-2", ...)
//   - a fusionlog.Logger recorder on the simulated clock
//
// Steps are submitted at their at_ms offsets. After the last step the clock
// advances past the debounce so the final window is evaluated. Output ids
// are content-addressed, so identical scenarios produce identical outputs
// and golden snapshots are stable.
package harness
