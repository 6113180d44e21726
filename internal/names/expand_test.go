package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandTopicName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		node  string
		ns    string
		want  string
	}{
		{"absolute", "/chatter", "talker", "/robot", "/chatter"},
		{"relative", "chatter", "talker", "/robot", "/robot/chatter"},
		{"relative root ns", "chatter", "talker", "/", "/chatter"},
		{"private", "~/out", "talker", "/robot", "/robot/talker/out"},
		{"private root ns", "~/out", "talker", "/", "/talker/out"},
		{"bare private", "~", "talker", "/robot", "/robot/talker"},
		{"node substitution", "{node}/out", "talker", "/robot", "/robot/talker/out"},
		{"ns substitution", "{ns}/out", "talker", "/robot", "/robot/out"},
		{"namespace substitution root", "{namespace}/out", "talker", "/", "/out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandTopicName(tt.input, tt.node, tt.ns)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandTopicName_Errors(t *testing.T) {
	_, err := ExpandTopicName("{robot}/x", "talker", "/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown substitution")

	_, err = ExpandTopicName("chatter", "bad-node", "/")
	assert.Error(t, err)

	_, err = ExpandTopicName("chatter", "talker", "relative")
	assert.Error(t, err)

	_, err = ExpandTopicName("chatter/", "talker", "/")
	assert.Error(t, err)
}

func TestFullyQualifiedNodeName(t *testing.T) {
	assert.Equal(t, "/talker", FullyQualifiedNodeName("talker", "/"))
	assert.Equal(t, "/talker", FullyQualifiedNodeName("talker", ""))
	assert.Equal(t, "/robot/talker", FullyQualifiedNodeName("talker", "/robot"))
}
