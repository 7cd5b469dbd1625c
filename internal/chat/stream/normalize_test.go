package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perchlabs/perch/pkg/gateway/protocol"
)

func TestNormalizeChatVariants(t *testing.T) {
	cases := []struct {
		name    string
		payload protocol.RawPayload
		want    Update
	}{
		{
			name: "explicit delta state",
			payload: protocol.RawPayload{
				"runId": "r1", "sessionKey": "s1",
				"state": "delta", "delta": "Hel",
			},
			want: Update{RunID: "r1", SessionKey: "s1", State: RunStateDelta, Text: "Hel"},
		},
		{
			name: "snake case keys",
			payload: protocol.RawPayload{
				"run_id": "r1", "session_key": "s1",
				"state": "delta", "text_delta": "Hel",
			},
			want: Update{RunID: "r1", SessionKey: "s1", State: RunStateDelta, Text: "Hel"},
		},
		{
			name: "final with string message",
			payload: protocol.RawPayload{
				"runId": "r1", "state": "final", "message": "done now",
			},
			want: Update{RunID: "r1", State: RunStateFinal, Text: "done now"},
		},
		{
			name: "final via done flag",
			payload: protocol.RawPayload{
				"runId": "r1", "done": true, "message": "done now",
			},
			want: Update{RunID: "r1", State: RunStateFinal, Text: "done now"},
		},
		{
			name: "final with content blocks",
			payload: protocol.RawPayload{
				"runId": "r1",
				"state": "final",
				"message": map[string]interface{}{
					"content": []interface{}{
						map[string]interface{}{"type": "text", "text": "part one "},
						map[string]interface{}{"type": "image", "url": "x"},
						map[string]interface{}{"type": "text", "text": "part two"},
					},
				},
			},
			want: Update{RunID: "r1", State: RunStateFinal, Text: "part one part two"},
		},
		{
			name: "aborted flag",
			payload: protocol.RawPayload{
				"runId": "r1", "aborted": true,
			},
			want: Update{RunID: "r1", State: RunStateAborted},
		},
		{
			name: "error object",
			payload: protocol.RawPayload{
				"runId": "r1",
				"error": map[string]interface{}{"message": "model overloaded"},
			},
			want: Update{RunID: "r1", State: RunStateError, ErrorMessage: "model overloaded"},
		},
		{
			name: "error string",
			payload: protocol.RawPayload{
				"runId": "r1", "state": "error", "error": "timed out",
			},
			want: Update{RunID: "r1", State: RunStateError, ErrorMessage: "timed out"},
		},
		{
			name: "implicit delta from chunk field",
			payload: protocol.RawPayload{
				"runId": "r1", "chunk": "more",
			},
			want: Update{RunID: "r1", State: RunStateDelta, Text: "more"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := normalizeChat(tc.payload)
			require.True(t, ok, "payload should normalize")
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeChatUnrecognized(t *testing.T) {
	_, ok := normalizeChat(protocol.RawPayload{"unrelated": 1})
	assert.False(t, ok)

	_, ok = normalizeChat(nil)
	assert.False(t, ok)
}

func TestNormalizeAgentAssistant(t *testing.T) {
	u, ok := normalizeAgent(protocol.RawPayload{
		"stream": "assistant",
		"runId":  "r1",
		"delta":  "frag",
	})
	require.True(t, ok)
	assert.Equal(t, agentStreamAssistant, u.stream)
	assert.Equal(t, "r1", u.runID)
	assert.Equal(t, "frag", u.text)
}

func TestNormalizeAgentAssistantMessageText(t *testing.T) {
	u, ok := normalizeAgent(protocol.RawPayload{
		"type":    "assistant_message",
		"runId":   "r1",
		"message": map[string]interface{}{"text": "frag"},
	})
	require.True(t, ok)
	assert.Equal(t, agentStreamAssistant, u.stream)
	assert.Equal(t, "frag", u.text)
}

func TestNormalizeAgentLifecycle(t *testing.T) {
	u, ok := normalizeAgent(protocol.RawPayload{
		"stream": "lifecycle",
		"runId":  "r1",
		"phase":  "end",
	})
	require.True(t, ok)
	assert.Equal(t, agentStreamLifecycle, u.stream)
	assert.Equal(t, "end", u.phase)
}

func TestNormalizeAgentNoStream(t *testing.T) {
	_, ok := normalizeAgent(protocol.RawPayload{"delta": "frag"})
	assert.False(t, ok)
}
