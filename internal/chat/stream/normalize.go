package stream

import (
	"strings"

	"github.com/perchlabs/perch/pkg/gateway/protocol"
)

// RunState is the normalized lifecycle state of an assistant run.
type RunState string

const (
	RunStateDelta   RunState = "delta"
	RunStateFinal   RunState = "final"
	RunStateAborted RunState = "aborted"
	RunStateError   RunState = "error"
)

// Update is the uniform shape both event families normalize into.
type Update struct {
	RunID        string
	SessionKey   string
	State        RunState
	Text         string
	ErrorMessage string
}

// Accepted key spellings, in lookup priority order. Gateway builds disagree
// on casing and naming, so each concept is a table rather than one field.
var (
	runIDKeys      = []string{"runId", "run_id", "runID"}
	sessionKeyKeys = []string{"sessionKey", "session_key", "sessionId", "session_id", "session"}
	deltaKeys      = []string{"delta", "textDelta", "text_delta", "chunk", "partial"}
	messageKeys    = []string{"message", "text", "content", "body"}
	errorKeys      = []string{"errorMessage", "error_message", "error", "reason"}
	stateKeys      = []string{"state", "status", "phase"}
	streamKeys     = []string{"stream", "channel", "type"}
)

func stringField(p protocol.RawPayload, keys []string) string {
	for _, k := range keys {
		if v, ok := p[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func boolField(p protocol.RawPayload, key string) bool {
	v, ok := p[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// extractText pulls displayable text out of a message value, which may be a
// plain string, an object with text/content fields, or a content-block list.
func extractText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if s, ok := t["text"].(string); ok && s != "" {
			return s
		}
		if c, ok := t["content"]; ok {
			return extractText(c)
		}
		return ""
	case []interface{}:
		var b strings.Builder
		for _, item := range t {
			block, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if bt, ok := block["type"].(string); ok && bt != "" && bt != "text" {
				continue
			}
			if s, ok := block["text"].(string); ok {
				b.WriteString(s)
			}
		}
		return b.String()
	default:
		return ""
	}
}

func extractError(p protocol.RawPayload) string {
	for _, k := range errorKeys {
		v, ok := p[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case map[string]interface{}:
			if s, ok := t["message"].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// classifyState infers the run state from the payload. Priority: explicit
// state markers, then boolean completion/abort/error flags, then presence of
// delta vs full-message fields.
func classifyState(p protocol.RawPayload) (RunState, bool) {
	switch strings.ToLower(stringField(p, stateKeys)) {
	case "delta", "streaming", "partial":
		return RunStateDelta, true
	case "final", "done", "complete", "completed":
		return RunStateFinal, true
	case "aborted", "abort", "cancelled", "canceled":
		return RunStateAborted, true
	case "error", "failed", "failure":
		return RunStateError, true
	}

	if boolField(p, "aborted") || boolField(p, "cancelled") {
		return RunStateAborted, true
	}
	if _, ok := p["error"]; ok {
		if extractError(p) != "" {
			return RunStateError, true
		}
	}
	if boolField(p, "done") || boolField(p, "complete") || boolField(p, "finished") {
		return RunStateFinal, true
	}

	if stringField(p, deltaKeys) != "" {
		return RunStateDelta, true
	}
	for _, k := range messageKeys {
		if _, ok := p[k]; ok {
			return RunStateFinal, true
		}
	}
	return "", false
}

// normalizeChat maps a chat-channel event payload into an Update.
func normalizeChat(p protocol.RawPayload) (Update, bool) {
	if p == nil {
		return Update{}, false
	}
	state, ok := classifyState(p)
	if !ok {
		return Update{}, false
	}
	u := Update{
		RunID:      stringField(p, runIDKeys),
		SessionKey: stringField(p, sessionKeyKeys),
		State:      state,
	}
	if state == RunStateError {
		u.ErrorMessage = extractError(p)
	}
	if d := stringField(p, deltaKeys); d != "" && state == RunStateDelta {
		u.Text = d
	} else {
		for _, k := range messageKeys {
			if v, ok := p[k]; ok {
				if s := extractText(v); s != "" {
					u.Text = s
					break
				}
			}
		}
	}
	return u, true
}

// Agent-channel sub-streams.
const (
	agentStreamAssistant = "assistant"
	agentStreamLifecycle = "lifecycle"
	agentStreamTool      = "tool"
)

// agentUpdate is the normalized view of one agent-channel event.
type agentUpdate struct {
	runID      string
	sessionKey string
	stream     string
	text       string
	phase      string
	errMessage string
}

// normalizeAgent maps an agent-channel event payload. The assistant
// sub-stream carries raw text fragments; lifecycle carries phase markers.
func normalizeAgent(p protocol.RawPayload) (agentUpdate, bool) {
	if p == nil {
		return agentUpdate{}, false
	}
	stream := strings.ToLower(stringField(p, streamKeys))
	if stream == "" {
		return agentUpdate{}, false
	}
	u := agentUpdate{
		runID:      stringField(p, runIDKeys),
		sessionKey: stringField(p, sessionKeyKeys),
		stream:     stream,
	}
	switch {
	case strings.Contains(stream, agentStreamAssistant):
		u.stream = agentStreamAssistant
		if d := stringField(p, deltaKeys); d != "" {
			u.text = d
		} else {
			for _, k := range messageKeys {
				if v, ok := p[k]; ok {
					if s := extractText(v); s != "" {
						u.text = s
						break
					}
				}
			}
		}
	case strings.Contains(stream, agentStreamLifecycle):
		u.stream = agentStreamLifecycle
		u.phase = strings.ToLower(stringField(p, stateKeys))
		u.errMessage = extractError(p)
	}
	return u, true
}
