// Package introspect serves a read-only HTTP view of a running system: the
// ROS graph of one context and the counters of its executor.
//
// Routes:
//
//	GET /healthz          context and executor liveness
//	GET /graph/nodes      nodes with their endpoints
//	GET /graph/topics     topics, types and endpoint counts
//	GET /graph/services   services and types
//	GET /executor         executor stats
//
// Every response uses the same JSON envelope: status, request_id, and
// either data or error.
package introspect
