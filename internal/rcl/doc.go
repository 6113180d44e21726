// Package rcl is the in-process entity layer under the executor.
//
// It provides what a ROS 2 client library gets from rcl and the middleware:
// a Context with init and shutdown, nodes, and the schedulable entities
// (subscriptions, timers, services, clients, action servers and clients,
// guard conditions). Messages travel between publishers and subscriptions
// in memory; there is no network transport.
//
// Every schedulable entity implements Waitable. It exposes a WaitHandle that
// is signaled when the entity may have become ready, reports readiness with
// IsReady, and hands out work with Take. Take returns a Task with the input
// already captured, so the executor can run it on any goroutine.
//
// Every entity belongs to exactly one CallbackGroup. Groups decide which
// members may run at the same time; the executor consults them through
// Begin and End.
package rcl
