// Package harness runs executor scenarios as deterministic contract tests.
//
// A scenario names a node graph, drives it with explicit steps on
// simulated ROS time and checks assertions over the recorded dispatch
// trace.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: relay_chain
//	description: "A timer feeds a two hop relay"
//	launch: ../launch/relay.cue      # or an inline nodes: mapping
//	executor: {kind: single_threaded} # optional override
//	steps:
//	  - advance: 100ms
//	  - spin_once: 3
//	  - publish: {node: source, publisher: raw}
//	  - trigger: {node: filter, guard: poke}
//	  - fail_next: {node: filter, entity: raw, count: 1, panic: false}
//	  - call: {node: sink, client: ask, request: ping, expect: ping}
//	assertions:
//	  - type: dispatch_count
//	    node: /sink
//	    entity: clean
//	    count: 1
//	  - type: dispatch_order
//	    entities: [/source/tick, /filter/raw, /sink/clean]
//	  - type: no_overlap
//	  - type: error_count
//	    count: 0
//
// Inline nodes use the launch description schema of package launch.
//
// # Determinism
//
// Each run gets a fresh context with sequential entity ids, a ROS time
// clock with the override enabled, and an in-memory dispatch log. Time only
// moves on advance steps and spin_once polls with a zero timeout, so a
// single-threaded scenario yields the same trace on every run. Its golden
// form (see GoldenTrace) is compared with goldie.
//
// On a multi-threaded executor each spin_once waits for the callbacks it
// started, so step order holds, but end seqs of concurrent callbacks may
// vary. Use assertions rather than golden files there.
package harness
