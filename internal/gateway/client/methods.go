package client

import (
	"context"
	"encoding/json"

	apperrors "github.com/perchlabs/perch/internal/common/errors"
	"github.com/perchlabs/perch/pkg/gateway/protocol"
)

// SendChat submits a message to a session. The response acknowledges receipt;
// agent output arrives as chat/agent events.
func (c *Client) SendChat(ctx context.Context, params protocol.ChatSendParams) (json.RawMessage, error) {
	return c.Request(ctx, protocol.MethodChatSend, params)
}

// History fetches the stored transcript for a session.
func (c *Client) History(ctx context.Context, params protocol.ChatHistoryParams) (*protocol.ChatHistoryResult, error) {
	payload, err := c.Request(ctx, protocol.MethodChatHistory, params)
	if err != nil {
		return nil, err
	}
	var result protocol.ChatHistoryResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse history payload")
	}
	return &result, nil
}

// AbortChat cancels an in-flight run on a session.
func (c *Client) AbortChat(ctx context.Context, params protocol.ChatAbortParams) error {
	_, err := c.Request(ctx, protocol.MethodChatAbort, params)
	return err
}

// ListSessions fetches the sessions visible to this client.
func (c *Client) ListSessions(ctx context.Context) (*protocol.SessionsListResult, error) {
	payload, err := c.Request(ctx, protocol.MethodSessionsList, nil)
	if err != nil {
		return nil, err
	}
	var result protocol.SessionsListResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse sessions payload")
	}
	return &result, nil
}
