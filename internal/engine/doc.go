// Package engine implements the multi-modal input fusion engine.
//
// The engine receives typed input events from producers (voice, text,
// gesture, touch, camera, sensor), buffers them, and after a short debounce
// decides whether the inputs that arrived close together should be fused
// into a single command.
//
// ARCHITECTURE:
//
// Debounce-Then-Evaluate:
// Every ProcessInput call cancels the pending evaluation and schedules a new
// one after the debounce delay. A burst of inputs is evaluated once, after
// the producers go quiet.
//
// Evaluation Flow:
//  1. Candidates are the buffered inputs younger than the simultaneous-input window
//  2. Two or more candidates: the first matching rule fuses them, else default fusion
//  3. One candidate: it passes through as its own fused output
//  4. The buffer is pruned of inputs older than twice the window
//
// Rules are scanned in registration order and the first match wins.
// Rule.Priority is carried for display and never consulted.
//
// CONCURRENCY:
//
// One mutex serialises producer calls and timer callbacks, so state changes
// happen one at a time. Callbacks run after the mutex is released and may
// call back into the engine, except for Flush. A second mutex spans each
// evaluation cycle so Flush never returns while a cycle is delivering. A generation counter turns cancelled timer
// callbacks into no-ops. Engines share no state with each other.
package engine
