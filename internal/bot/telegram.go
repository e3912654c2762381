package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.telegram.org"

// ErrDeliveryFailed indicates a message could not be handed to the chat
// transport after all fallbacks.
var ErrDeliveryFailed = errors.New("message delivery failed")

// Update is one inbound event from the chat transport.
type Update struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		MessageID int    `json:"message_id"`
		Text      string `json:"text"`
		Chat      struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Client talks to the Telegram Bot API for a single bot and chat.
type Client struct {
	token   string
	chatID  string
	apiURL  string
	httpCli *http.Client
}

// NewClient creates a Telegram client. TELEGRAM_API_URL overrides the
// endpoint, mainly for tests.
func NewClient(token, chatID string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if chatID == "" {
		return nil, fmt.Errorf("telegram chat ID is required")
	}
	apiURL := defaultAPIURL
	if v := os.Getenv("TELEGRAM_API_URL"); v != "" {
		apiURL = strings.TrimSuffix(v, "/")
	}
	return &Client{
		token:  token,
		chatID: chatID,
		apiURL: apiURL,
		// Long polls run up to 30s; leave headroom.
		httpCli: &http.Client{Timeout: 40 * time.Second},
	}, nil
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", method, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("%w: status %d, unparseable response", ErrDeliveryFailed, resp.StatusCode)
	}
	if !env.OK {
		return nil, &apiError{status: resp.StatusCode, description: env.Description}
	}
	return env.Result, nil
}

type apiError struct {
	status      int
	description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", ErrDeliveryFailed, e.status, e.description)
}

func (e *apiError) Unwrap() error { return ErrDeliveryFailed }

// SendMessage sends Markdown text to the configured chat and returns the
// message ID. When the API rejects the markup with a 400 the message is
// retried as plain text so the content is never lost to formatting.
func (c *Client) SendMessage(ctx context.Context, text string) (int, error) {
	id, err := c.send(ctx, text, "Markdown")
	if err == nil {
		return id, nil
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.status == http.StatusBadRequest {
		return c.send(ctx, text, "")
	}
	return 0, err
}

func (c *Client) send(ctx context.Context, text, parseMode string) (int, error) {
	payload := map[string]any{
		"chat_id": c.chatID,
		"text":    text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	result, err := c.call(ctx, "sendMessage", payload)
	if err != nil {
		return 0, err
	}
	var msg struct {
		MessageID int `json:"message_id"`
	}
	if err := json.Unmarshal(result, &msg); err != nil {
		return 0, fmt.Errorf("parsing sendMessage result: %w", err)
	}
	return msg.MessageID, nil
}

// DeleteMessage removes a previously sent message from the chat.
func (c *Client) DeleteMessage(ctx context.Context, messageID int) error {
	_, err := c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    c.chatID,
		"message_id": messageID,
	})
	return err
}

// GetUpdates long-polls for inbound updates after offset. Every fetched
// update is returned so the caller's offset advances past it; messages
// from chats other than the configured one have their payload stripped.
func (c *Client) GetUpdates(ctx context.Context, offset int) ([]Update, error) {
	result, err := c.call(ctx, "getUpdates", map[string]any{
		"offset":  offset,
		"timeout": 30,
	})
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("parsing getUpdates result: %w", err)
	}
	for i := range updates {
		if updates[i].Message != nil && fmt.Sprint(updates[i].Message.Chat.ID) != c.chatID {
			updates[i].Message = nil
		}
	}
	return updates, nil
}

// Deliver sends text to the chat, satisfying the scan pipeline's notifier
// contract.
func (c *Client) Deliver(ctx context.Context, text string) error {
	_, err := c.SendMessage(ctx, text)
	return err
}
