package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultPushEndpoint is the LINE Messaging API push endpoint
const DefaultPushEndpoint = "https://api.line.me/v2/bot/message/push"

const pushTimeout = 10 * time.Second

type pushMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []pushMessage `json:"messages"`
}

// PushNotifier posts text messages to a LINE-compatible push endpoint
type PushNotifier struct {
	endpoint  string
	token     string
	recipient string
	client    *http.Client
}

// NewPushNotifier creates a push notifier. An empty endpoint selects LINE.
func NewPushNotifier(endpoint, token, recipient string) (*PushNotifier, error) {
	if token == "" || recipient == "" {
		return nil, fmt.Errorf("push notifier requires a token and a recipient")
	}
	if endpoint == "" {
		endpoint = DefaultPushEndpoint
	}
	return &PushNotifier{
		endpoint:  endpoint,
		token:     token,
		recipient: recipient,
		client:    &http.Client{Timeout: pushTimeout},
	}, nil
}

// Send posts message to the recipient
func (p *PushNotifier) Send(ctx context.Context, message string) error {
	payload, err := json.Marshal(pushRequest{
		To:       p.recipient,
		Messages: []pushMessage{{Type: "text", Text: message}},
	})
	if err != nil {
		return &NotifyError{Err: fmt.Errorf("failed to encode message: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return &NotifyError{Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	log.Debug().Str("endpoint", p.endpoint).Msg("Sending push notification")
	res, err := p.client.Do(req)
	if err != nil {
		return &NotifyError{Err: err}
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &NotifyError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}
