package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	r, err := ParseRule("chatter:=/other")
	require.NoError(t, err)
	assert.Equal(t, Rule{From: "chatter", To: "/other"}, r)
	assert.Equal(t, "chatter:=/other", r.String())

	r, err = ParseRule("talker:chatter:=other")
	require.NoError(t, err)
	assert.Equal(t, Rule{Node: "talker", From: "chatter", To: "other"}, r)
	assert.Equal(t, "talker:chatter:=other", r.String())

	r, err = ParseRule("__ns:=/robot")
	require.NoError(t, err)
	assert.Equal(t, "__ns", r.From)

	for _, bad := range []string{"chatter", ":=x", "x:=", "a-b:x:=y", "x:=1bad", "__node:=bad-name", "__ns:=relative"} {
		_, err := ParseRule(bad)
		assert.Error(t, err, bad)
	}
}

func TestRemap(t *testing.T) {
	rules := []Rule{
		{Node: "listener", From: "chatter", To: "only_listener"},
		{From: "chatter", To: "/global_chatter"},
		{From: "chatter", To: "never_reached"},
	}

	got, err := Remap("/robot/chatter", "talker", "/robot", rules)
	require.NoError(t, err)
	assert.Equal(t, "/global_chatter", got, "node-scoped rule skipped, first matching rule wins")

	got, err = Remap("/robot/chatter", "listener", "/robot", rules)
	require.NoError(t, err)
	assert.Equal(t, "/robot/only_listener", got)

	got, err = Remap("/robot/other", "talker", "/robot", rules)
	require.NoError(t, err)
	assert.Equal(t, "/robot/other", got, "no match leaves the name unchanged")
}

func TestRemapNodeNameAndNamespace(t *testing.T) {
	rules := []Rule{
		{Node: "other", From: "__node", To: "ignored"},
		{From: "__name", To: "renamed"},
		{From: "__ns", To: "/moved"},
	}
	assert.Equal(t, "renamed", RemapNodeName("talker", rules))
	assert.Equal(t, "ignored", RemapNodeName("other", rules))
	assert.Equal(t, "/moved", RemapNamespace("talker", "/", rules))
	assert.Equal(t, "/", RemapNamespace("talker", "/", nil))
}

func TestResolveName(t *testing.T) {
	rules := []Rule{{From: "chatter", To: "remapped"}}

	got, err := ResolveName("chatter", "talker", "/ns", rules, false)
	require.NoError(t, err)
	assert.Equal(t, "/ns/remapped", got)

	got, err = ResolveName("chatter", "talker", "/ns", rules, true)
	require.NoError(t, err)
	assert.Equal(t, "/ns/chatter", got)

	_, err = ResolveName("bad name", "talker", "/ns", rules, false)
	assert.Error(t, err)
}
