package rcl

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, opts ...InitOption) *Context {
	t.Helper()
	c := NewContext()
	opts = append([]InitOption{WithDomainID(0), WithSignalHandlers(SignalHandlerNo)}, opts...)
	require.NoError(t, c.Init(opts...))
	t.Cleanup(func() { _ = c.TryShutdown() })
	return c
}

func newTestNode(t *testing.T, c *Context, name string, opts ...NodeOption) *Node {
	t.Helper()
	n, err := NewNode(c, name, opts...)
	require.NoError(t, err)
	return n
}

// drain plays the executor for n: it runs every ready entity until nothing
// is ready and returns the callback errors.
func drain(t *testing.T, n *Node) []error {
	t.Helper()
	var errs []error
	for round := 0; round < 100; round++ {
		ran := 0
		for _, w := range n.Entities() {
			if !w.IsReady() {
				continue
			}
			task, ok := w.Take()
			if !ok {
				continue
			}
			if err := task(context.Background()); err != nil {
				errs = append(errs, err)
			}
			ran++
		}
		if ran == 0 {
			return errs
		}
	}
	t.Fatal("entities never settled")
	return nil
}

func TestContext_InitShutdown(t *testing.T) {
	c := NewContext()
	assert.False(t, c.OK())

	require.NoError(t, c.Init(WithSignalHandlers(SignalHandlerNo)))
	assert.True(t, c.OK())
	assert.NotNil(t, c.Graph())
	assert.NotNil(t, c.Args())

	require.NoError(t, c.Shutdown())
	assert.False(t, c.OK())
	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after shutdown")
	}
}

func TestContext_InitWithUnknownROSArgs(t *testing.T) {
	c := NewContext()
	err := c.Init(WithArgs([]string{"--ros-args", "unknown"}), WithSignalHandlers(SignalHandlerNo))
	require.Error(t, err)
	assert.True(t, IsUnknownROSArgs(err))
	assert.Equal(t, ErrCodeUnknownROSArgs, CodeOf(err))
	assert.Contains(t, err.Error(), "['unknown']")
	assert.False(t, c.OK())
}

func TestContext_InitWithNonUTF8Arguments(t *testing.T) {
	c := NewContext()
	err := c.Init(WithArgs([]string{"my-node", "Ragnar\xed\xb3\x83k"}), WithSignalHandlers(SignalHandlerNo))
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidArgument, CodeOf(err))
}

func TestContext_InitShutdownSequence(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Init(WithSignalHandlers(SignalHandlerNo)))
	require.NoError(t, c.Shutdown())

	// A context cannot be reused, but a new one does not interfere.
	c = NewContext()
	require.NoError(t, c.Init(WithSignalHandlers(SignalHandlerNo)))
	require.NoError(t, c.Shutdown())

	// Global.
	require.NoError(t, Init())
	require.NoError(t, Shutdown())
	require.NoError(t, Init())
	require.NoError(t, Shutdown())
}

func TestContext_DoubleInit(t *testing.T) {
	c := newTestContext(t)
	err := c.Init()
	require.Error(t, err)
	assert.Equal(t, ErrCodeAlreadyInitialized, CodeOf(err))
}

func TestContext_DoubleShutdown(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Init(WithSignalHandlers(SignalHandlerNo)))
	require.NoError(t, c.Shutdown())

	err := c.Shutdown()
	require.Error(t, err)
	assert.Equal(t, ErrCodeAlreadyShutdown, CodeOf(err))
	assert.NoError(t, c.TryShutdown())
}

func TestContext_ShutdownWithoutInit(t *testing.T) {
	err := NewContext().Shutdown()
	assert.True(t, IsNotInitialized(err))
}

func TestContext_CannotReinitAfterShutdown(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Init(WithSignalHandlers(SignalHandlerNo)))
	require.NoError(t, c.Shutdown())
	assert.Equal(t, ErrCodeAlreadyInitialized, CodeOf(c.Init()))
}

func TestCreateNode_WithoutInit(t *testing.T) {
	_, err := NewNode(NewContext(), "foo")
	require.Error(t, err)
	assert.True(t, IsNotInitialized(err))
}

func TestCreateNode_AfterShutdown(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Init(WithSignalHandlers(SignalHandlerNo)))
	require.NoError(t, c.Shutdown())

	_, err := NewNode(c, "foo")
	assert.True(t, IsNotInitialized(err))
}

func TestContext_InitWithDomainID(t *testing.T) {
	require.NoError(t, Init(WithDomainID(123), WithSignalHandlers(SignalHandlerNo)))
	id, err := DefaultContext().DomainID()
	require.NoError(t, err)
	assert.Equal(t, 123, id)
	require.NoError(t, Shutdown())

	c := NewContext()
	require.NoError(t, c.Init(WithDomainID(123), WithSignalHandlers(SignalHandlerNo)))
	id, err = c.DomainID()
	require.NoError(t, err)
	assert.Equal(t, 123, id)
	require.NoError(t, c.Shutdown())
}

func TestContext_InitWithInvalidDomainID(t *testing.T) {
	for _, id := range []int{-1, MaxDomainID + 1} {
		c := NewContext()
		err := c.Init(WithDomainID(id), WithSignalHandlers(SignalHandlerNo))
		require.Error(t, err, "domain id %d", id)
		assert.Equal(t, ErrCodeInvalidArgument, CodeOf(err))
	}
}

func TestContext_DomainIDFromEnvironment(t *testing.T) {
	t.Setenv(DomainIDEnv, "42")
	c := NewContext()
	require.NoError(t, c.Init(WithSignalHandlers(SignalHandlerNo)))
	defer c.Shutdown()
	id, err := c.DomainID()
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	t.Setenv(DomainIDEnv, "not-a-number")
	bad := NewContext()
	assert.Equal(t, ErrCodeInvalidArgument, CodeOf(bad.Init(WithSignalHandlers(SignalHandlerNo))))
}

func TestContext_DomainIDBeforeInit(t *testing.T) {
	_, err := NewContext().DomainID()
	assert.True(t, IsNotInitialized(err))
}

func TestContext_OnShutdown(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Init(WithSignalHandlers(SignalHandlerNo)))

	var order []int
	c.OnShutdown(func() { order = append(order, 1) })
	c.OnShutdown(func() { order = append(order, 2) })
	require.NoError(t, c.Shutdown())
	assert.Equal(t, []int{1, 2}, order)

	// Registered after shutdown: runs at once.
	c.OnShutdown(func() { order = append(order, 3) })
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestContext_ArgsAreParsed(t *testing.T) {
	c := newTestContext(t, WithArgs([]string{
		"prog", "--ros-args", "--log-level", "debug", "-r", "chatter:=talk", "-p", "rate:=5",
	}))
	args := c.Args()
	require.NotNil(t, args)
	assert.Equal(t, "debug", args.LogLevel)
	require.Len(t, args.Remaps, 1)
	assert.Equal(t, "talk", args.Remaps[0].To)
	assert.Equal(t, map[string]string{"rate": "5"}, args.ParamsFor("any"))
}

func TestSignalHandlers_InstalledWithDefaultContext(t *testing.T) {
	require.Equal(t, SignalHandlerNo, CurrentSignalHandlerOptions())

	require.NoError(t, Init())
	assert.Equal(t, SignalHandlerAll, CurrentSignalHandlerOptions())
	require.NoError(t, Shutdown())
	assert.Equal(t, SignalHandlerNo, CurrentSignalHandlerOptions())
}

func TestSignalHandlers_SignalShutsDownContexts(t *testing.T) {
	a := NewContext()
	require.NoError(t, a.Init(WithSignalHandlers(SignalHandlerSigInt)))
	b := NewContext()
	require.NoError(t, b.Init(WithSignalHandlers(SignalHandlerSigInt)))
	assert.Equal(t, SignalHandlerSigInt, CurrentSignalHandlerOptions())

	handleSignal(os.Interrupt)

	assert.False(t, a.OK())
	assert.False(t, b.OK())
	assert.Equal(t, SignalHandlerNo, CurrentSignalHandlerOptions(), "handler removed with the last context")
}

func TestSignalHandlers_InstallUninstall(t *testing.T) {
	InstallSignalHandlers(SignalHandlerSigTerm)
	assert.Equal(t, SignalHandlerSigTerm, CurrentSignalHandlerOptions())
	InstallSignalHandlers(SignalHandlerAll)
	assert.Equal(t, SignalHandlerAll, CurrentSignalHandlerOptions())
	UninstallSignalHandlers()
	assert.Equal(t, SignalHandlerNo, CurrentSignalHandlerOptions())

	assert.Equal(t, "SIGINT", SignalHandlerSigInt.String())
}
