// Package ir provides the data model shared by every fusion package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the data model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - InputEvent and FusedOutput are values; once built they are never mutated
//   - Payloads are a sealed tagged union keyed by InputType
//   - Rule-specific fused fields use IRValue (no floats, canonical JSON)
//   - Seq (ingestion order) orders events; timestamps only measure age
package ir
