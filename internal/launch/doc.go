// Package launch loads launch descriptions and builds the node graph they
// describe.
//
// A launch description is a CUE file unified with an embedded schema. It
// names the executor kind and worker count and, per node, its callback
// groups and entities:
//
//	executor: kind: "multi_threaded"
//	executor: workers: 4
//
//	nodes: talker: {
//		groups: io: kind: "reentrant"
//		publishers: out: topic: "chatter"
//		timers: tick: {period: "100ms", work: "5ms", publish: "out", group: "io"}
//	}
//	nodes: listener: subscriptions: in: {topic: "chatter", work: "20ms"}
//
// Entities carry synthetic behavior: a callback sleeps for its work
// duration and may publish a Count on one of its node's publishers. Faults
// can be injected per entity with FailNext and PanicNext, which the
// scenario harness uses to exercise error propagation.
package launch
