package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// TelegramNotifier sends alerts to a Telegram chat through the Bot API
type TelegramNotifier struct {
	token    string
	endpoint string
	chatID   int64
	client   *http.Client
	bot      *tgbotapi.BotAPI
}

// NewTelegramNotifier creates a Telegram notifier. recipient is a numeric
// chat ID; endpoint is a Bot API format string and defaults to the public API.
func NewTelegramNotifier(endpoint, token, recipient string) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram notifier requires a bot token")
	}
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %v", recipient, err)
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &TelegramNotifier{
		token:    token,
		endpoint: endpoint,
		chatID:   chatID,
		client:   &http.Client{Timeout: pushTimeout},
	}, nil
}

// Send delivers message to the configured chat. The bot is authorized on
// first use so construction never touches the network.
func (t *TelegramNotifier) Send(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return &NotifyError{Err: err}
	}
	if t.bot == nil {
		bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
		if err != nil {
			return telegramError(err)
		}
		log.Debug().Str("account", bot.Self.UserName).Msg("Authorized on Telegram account")
		t.bot = bot
	}

	msg := tgbotapi.NewMessage(t.chatID, message)
	if _, err := t.bot.Send(msg); err != nil {
		return telegramError(err)
	}
	return nil
}

func telegramError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &NotifyError{StatusCode: apiErr.Code, Body: apiErr.Message, Err: err}
	}
	return &NotifyError{Err: err}
}
