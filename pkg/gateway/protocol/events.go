package protocol

import "encoding/json"

// Event names pushed by the gateway.
const (
	EventConnectChallenge = "connect.challenge"
	EventTick             = "tick"
	EventShutdown         = "shutdown"
	EventChat             = "chat"
	EventAgent            = "agent"
	EventPresence         = "presence"
	EventHealth           = "health"
)

// Method names the client calls.
const (
	MethodConnect      = "connect"
	MethodChatSend     = "chat.send"
	MethodChatHistory  = "chat.history"
	MethodChatAbort    = "chat.abort"
	MethodSessionsList = "sessions.list"
)

// ChatSendParams is the params object of chat.send.
type ChatSendParams struct {
	SessionKey string `json:"sessionKey"`
	Message    string `json:"message"`
	IdemKey    string `json:"idempotencyKey,omitempty"`
}

// ChatHistoryParams is the params object of chat.history.
type ChatHistoryParams struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit,omitempty"`
}

// ChatHistoryMessage is one transcript entry in a chat.history payload.
type ChatHistoryMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ChatHistoryResult is the payload of a chat.history response.
type ChatHistoryResult struct {
	SessionKey string               `json:"sessionKey"`
	Messages   []ChatHistoryMessage `json:"messages"`
}

// ChatAbortParams is the params object of chat.abort.
type ChatAbortParams struct {
	SessionKey string `json:"sessionKey"`
	RunID      string `json:"runId,omitempty"`
}

// SessionEntry is one session in a sessions.list payload.
type SessionEntry struct {
	Key          string `json:"key"`
	Label        string `json:"label,omitempty"`
	Channel      string `json:"channel,omitempty"`
	Model        string `json:"model,omitempty"`
	MessageCount int    `json:"messageCount,omitempty"`
	UpdatedAt    int64  `json:"updatedAt,omitempty"`
}

// SessionsListResult is the payload of a sessions.list response.
type SessionsListResult struct {
	Sessions []SessionEntry `json:"sessions"`
}

// ShutdownPayload is the shutdown event payload.
type ShutdownPayload struct {
	Reason            string `json:"reason,omitempty"`
	RestartExpectedMs int    `json:"restartExpectedMs,omitempty"`
}

// RawPayload is the loosely-typed view the aggregators work with. Chat and
// agent event payloads vary by gateway build, so they are handed downstream
// as generic maps rather than fixed structs.
type RawPayload map[string]interface{}

// DecodeRawPayload unmarshals an event payload into a RawPayload view.
// A nil or non-object payload yields nil without error.
func DecodeRawPayload(raw json.RawMessage) RawPayload {
	if len(raw) == 0 {
		return nil
	}
	var m RawPayload
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
