package notify

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

const defaultWebhookTimeout = 5 * time.Second

// WebhookSink posts messages to per-scope incoming webhooks. Webhooks are
// bound to one channel, so the destination name is only carried in a header.
type WebhookSink struct {
	URLs   map[string]string
	Client *http.Client
}

func NewWebhookSink(urls map[string]string) *WebhookSink {
	return &WebhookSink{URLs: urls, Client: &http.Client{Timeout: defaultWebhookTimeout}}
}

type webhookEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color,omitempty"`
	Footer      *webhookFooter `json:"footer,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type webhookFooter struct {
	Text string `json:"text"`
}

type webhookMentions struct {
	Parse []string `json:"parse"`
	Users []string `json:"users,omitempty"`
}

type webhookBody struct {
	Content         string          `json:"content,omitempty"`
	Embeds          []webhookEmbed  `json:"embeds"`
	AllowedMentions webhookMentions `json:"allowed_mentions"`
}

func (w *WebhookSink) SendToDestination(ctx context.Context, scope, destination string, msg Message) error {
	url := strings.TrimSpace(w.URLs[scope])
	if url == "" {
		return fmt.Errorf("scope %s: %w", scope, ErrDestinationNotFound)
	}
	data, err := json.Marshal(webhookPayload(msg))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Streamline-Scope", scope)
	if destination != "" {
		req.Header.Set("X-Streamline-Destination", destination)
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("webhook status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

func (w *WebhookSink) SendDirect(ctx context.Context, userID string, msg Message) error {
	return ErrDirectUnsupported
}

func webhookPayload(msg Message) webhookBody {
	embed := webhookEmbed{Title: msg.Title, Description: msg.Body, Color: msg.Color}
	if msg.Footer != "" {
		embed.Footer = &webhookFooter{Text: msg.Footer}
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	body := webhookBody{
		Embeds:          []webhookEmbed{embed},
		AllowedMentions: webhookMentions{Parse: []string{}, Users: msg.Mentions},
	}
	if len(msg.Mentions) > 0 {
		parts := make([]string, len(msg.Mentions))
		for i, id := range msg.Mentions {
			parts[i] = mention(id)
		}
		body.Content = strings.Join(parts, " ")
	}
	return body
}
