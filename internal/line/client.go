// Package line is a minimal LINE Messaging API client covering the calls
// the dispatcher and operator surface depend on: reply, push, profile
// lookup, message content download, and the chat loading indicator.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// API is the subset of the platform the core talks to. The dispatcher and
// gateway depend on this interface so tests can substitute a fake.
type API interface {
	ReplyMessage(ctx context.Context, replyToken, text string) error
	PushMessage(ctx context.Context, userID, text string) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	GetMessageContent(ctx context.Context, messageID string) ([]byte, error)
	StartLoading(ctx context.Context, userID string, seconds int) error
}

// Profile is a LINE user profile.
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl"`
	StatusMessage string `json:"statusMessage"`
	Language      string `json:"language"`
}

// Client is the HTTP implementation of API.
type Client struct {
	token    string
	apiBase  string // https://api.line.me
	blobBase string // https://api-data.line.me
	client   *http.Client
}

func NewClient(token, apiBase, blobBase string) *Client {
	if apiBase == "" {
		apiBase = "https://api.line.me"
	}
	if blobBase == "" {
		blobBase = "https://api-data.line.me"
	}
	return &Client{
		token:    token,
		apiBase:  strings.TrimRight(apiBase, "/"),
		blobBase: strings.TrimRight(blobBase, "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReplyMessage answers an event using its one-shot reply token.
func (c *Client) ReplyMessage(ctx context.Context, replyToken, text string) error {
	body := map[string]any{
		"replyToken": replyToken,
		"messages":   []textMessage{{Type: "text", Text: text}},
	}
	return c.post(ctx, c.apiBase+"/v2/bot/message/reply", body)
}

// PushMessage sends a message outside the reply window (operator replies,
// end-chat notices).
func (c *Client) PushMessage(ctx context.Context, userID, text string) error {
	body := map[string]any{
		"to":       userID,
		"messages": []textMessage{{Type: "text", Text: text}},
	}
	return c.post(ctx, c.apiBase+"/v2/bot/message/push", body)
}

// GetProfile fetches display name and avatar. Callers fall back to a
// generated name when this fails; a missing profile is not fatal.
func (c *Client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.apiBase+"/v2/bot/profile/"+userID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("line profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("line profile: status %d", resp.StatusCode)
	}
	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("line profile: decode: %w", err)
	}
	return &p, nil
}

// GetMessageContent downloads the binary payload of an image or file
// message from the blob endpoint.
func (c *Client) GetMessageContent(ctx context.Context, messageID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.blobBase+"/v2/bot/message/"+messageID+"/content", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("line content: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("line content: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// StartLoading shows the typing/loading animation in the user's chat.
// Seconds is clamped to the API's 5..60 range and rounded to a multiple
// of 5. Failures are ignorable; this is cosmetic.
func (c *Client) StartLoading(ctx context.Context, userID string, seconds int) error {
	if seconds < 5 {
		seconds = 5
	}
	if seconds > 60 {
		seconds = 60
	}
	seconds = (seconds + 2) / 5 * 5
	if seconds < 5 {
		seconds = 5
	}
	body := map[string]any{
		"chatId":         userID,
		"loadingSeconds": seconds,
	}
	return c.post(ctx, c.apiBase+"/v2/bot/chat/loading/start", body)
}

func (c *Client) post(ctx context.Context, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("line: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("line: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("line: status %d: %s", resp.StatusCode, strings.TrimSpace(string(slurp)))
	}
	return nil
}
