// Package ir defines the records the executor emits about its own work and
// the canonical serialization used to identify and compare them.
//
// A Dispatch is written once per callback invocation, after the callback
// returns. Its Seq and EndSeq come from the executor's logical clock, so two
// dispatches overlap in time exactly when their [Seq, EndSeq] intervals
// intersect. The store and the conformance harness both rely on that.
//
// # Canonical JSON
//
// MarshalCanonical produces RFC 8785 style output:
//   - object keys sorted by UTF-16 code units
//   - no HTML escaping
//   - strings NFC normalized
//   - no floats, no null
//
// Golden trace files and content-addressed dispatch IDs are built on it, so the
// same run always produces byte-identical output.
package ir
