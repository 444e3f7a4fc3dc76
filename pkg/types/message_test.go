package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageConstructors(t *testing.T) {
	assert.Equal(t, RoleSystem, NewSystemMessage("s").Role)
	assert.Equal(t, RoleUser, NewUserMessage("u").Role)
	assert.Equal(t, RoleAssistant, NewAssistantMessage("a").Role)
	assert.Equal(t, "a", NewAssistantMessage("a").Content)
}

func TestMessageJSONShape(t *testing.T) {
	data, err := json.Marshal(NewUserMessage("hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hello"}`, string(data))

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","content":"hi"}`), &msg))
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "hi", msg.Content)
}
