// Package dialog talks to the script engine that decides what the assistant
// says next.
package dialog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ai-media-hub-service/internal/service/session"
)

// Response is the envelope every script engine call returns.
type Response[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    *T     `json:"data"`
}

// ApplySessionData is the payload of apply_session: the dialog session id
// and the opening reply.
type ApplySessionData struct {
	SessionID string `json:"sessionId"`
	session.Reply
}

// AIReplyRequest is the body of ai_reply.
type AIReplyRequest struct {
	SessionID    string `json:"sessionId"`
	SpeechText   string `json:"speechText,omitempty"`
	SpeakingFlag int    `json:"speakingFlag"`
	IdleTime     *int64 `json:"idleTime,omitempty"`
}

// APIError is a non-zero code returned by the script engine.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dialog api error %d: %s", e.Code, e.Message)
}

// Client implements session.Dialog over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the script engine at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ApplySession implements session.Dialog.
func (c *Client) ApplySession(ctx context.Context) (string, *session.Reply, error) {
	var resp Response[ApplySessionData]
	if err := c.post(ctx, "/apply_session", struct{}{}, &resp); err != nil {
		return "", nil, err
	}
	if resp.Data == nil || resp.Data.SessionID == "" {
		return "", nil, fmt.Errorf("apply_session returned no session id")
	}
	reply := resp.Data.Reply
	return resp.Data.SessionID, &reply, nil
}

// AIReply implements session.Dialog.
func (c *Client) AIReply(ctx context.Context, req session.ReplyRequest) (*session.Reply, error) {
	body := AIReplyRequest{SessionID: req.SessionID, SpeechText: req.SpeechText}
	if req.AISpeaking {
		body.SpeakingFlag = 1
	}
	if req.IdleTime > 0 {
		ms := req.IdleTime.Milliseconds()
		body.IdleTime = &ms
	}
	var resp Response[session.Reply]
	if err := c.post(ctx, "/ai_reply", body, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out interface{ apiError() error }) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("call %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return out.apiError()
}

func (r *Response[T]) apiError() error {
	if r.Code != 0 {
		return &APIError{Code: r.Code, Message: r.Message}
	}
	return nil
}
