// Package executor waits for ROS entities to become ready and runs their
// callbacks.
//
// An Executor owns one spin loop. Each pass of the loop builds a wait set
// from the entities of its registered nodes, blocks in a WaitPrimitive until
// something is ready (or a timeout, registration change, callback
// completion or shutdown interrupts it) and then dispatches the ready
// entities:
//
//	Idle -> Waiting -> Dispatching -> Idle
//	any  -> ShuttingDown -> Terminated
//
// Dispatch asks each entity's CallbackGroup for a slot before taking its
// work. A MutuallyExclusive group hands out one slot at a time, a Reentrant
// group any number. Entities refused by their group are not taken; they stay
// ready and are reconsidered on the next pass, which the completing sibling
// triggers by waking the executor.
//
// Ready entities are ordered least recently dispatched first, registration
// order breaking ties, so a busy entity cannot starve its neighbours.
//
// SingleThreaded runs callbacks inline on the spin goroutine. MultiThreaded
// hands them to a bounded set of worker goroutines.
//
// Every invocation takes two seqs from the executor's logical Clock, one
// when selected and one when it returns. The resulting ir.Dispatch records
// let the store and the conformance harness check group exclusion after the
// fact.
package executor
