package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewContext_SequentialIDs(t *testing.T) {
	rctx := NewContext(t)
	assert.True(t, rctx.OK())

	node := NewNode(t, rctx, "ids")
	assert.Equal(t, "gid-1", node.DefaultCallbackGroup().ID())

	gc, err := node.CreateGuardCondition(nil)
	assert.NoError(t, err)
	assert.Equal(t, "gid-2", gc.GID())
}

func TestNewContext_ShutsDownOnCleanup(t *testing.T) {
	var captured interface{ OK() bool }
	t.Run("inner", func(t *testing.T) {
		captured = NewContext(t)
	})
	assert.False(t, captured.OK())
}
