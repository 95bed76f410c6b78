package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const httpChannelTimeout = 15 * time.Second

// TelegramChannel posts to a bot's sendMessage endpoint.
type TelegramChannel struct {
	client  *http.Client
	baseURL string
}

func NewTelegramChannel(botToken string) *TelegramChannel {
	return &TelegramChannel{
		client:  &http.Client{Timeout: httpChannelTimeout},
		baseURL: fmt.Sprintf("https://api.telegram.org/bot%s", botToken),
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, recipientChatID, message string) error {
	return postJSON(ctx, c.client, c.baseURL+"/sendMessage", map[string]any{
		"chat_id": recipientChatID,
		"text":    message,
	})
}

// SMSChannel posts to a generic SMS gateway (provider-specific body shape
// is out of scope; this is the minimal wire contract).
type SMSChannel struct {
	client  *http.Client
	baseURL string
}

func NewSMSChannel(baseURL string) *SMSChannel {
	return &SMSChannel{client: &http.Client{Timeout: httpChannelTimeout}, baseURL: baseURL}
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Send(ctx context.Context, recipientPhone, message string) error {
	return postJSON(ctx, c.client, c.baseURL+"/messages", map[string]any{
		"to":   recipientPhone,
		"body": message,
	})
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	ctx, cancel := context.WithTimeout(ctx, httpChannelTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: %s: status %d", url, resp.StatusCode)
	}
	return nil
}
