package testutil

import (
	"testing"

	"github.com/roach88/rclgo/internal/rcl"
)

// NewContext initializes an rcl context for one test and shuts it down on
// cleanup. Signal handlers are never installed and identifiers are
// sequential ("gid-1", "gid-2", ...), so dispatch records are reproducible.
func NewContext(t testing.TB, opts ...rcl.InitOption) *rcl.Context {
	t.Helper()
	rctx := rcl.NewContext()
	opts = append([]rcl.InitOption{
		rcl.WithDomainID(0),
		rcl.WithSignalHandlers(rcl.SignalHandlerNo),
		rcl.WithIDGenerator(rcl.NewSequentialGenerator("gid")),
	}, opts...)
	if err := rctx.Init(opts...); err != nil {
		t.Fatalf("rcl init: %v", err)
	}
	t.Cleanup(func() { _ = rctx.TryShutdown() })
	return rctx
}

// NewNode creates a node in rctx or fails the test.
func NewNode(t testing.TB, rctx *rcl.Context, name string, opts ...rcl.NodeOption) *rcl.Node {
	t.Helper()
	n, err := rcl.NewNode(rctx, name, opts...)
	if err != nil {
		t.Fatalf("create node %s: %v", name, err)
	}
	return n
}
