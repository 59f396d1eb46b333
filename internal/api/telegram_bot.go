// Package api provides handlers for external APIs and interfaces
package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abelzeko/river-alert/internal/integration/openai"
	"github.com/abelzeko/river-alert/internal/usecases"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

const (
	defaultHistory = 10
	maxHistory     = 50
	queryTimeout   = 5 * time.Second
)

// TelegramBot answers questions about the monitored station on Telegram
type TelegramBot struct {
	bot         *tgbotapi.BotAPI
	useCase     *usecases.StatusUseCase
	intents     openai.IntentService
	stationName string
}

// NewTelegramBot creates a new Telegram bot handler. intents may be nil, in
// which case only commands are understood.
func NewTelegramBot(botToken string, useCase *usecases.StatusUseCase, intents openai.IntentService, stationName string) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &TelegramBot{
		bot:         bot,
		useCase:     useCase,
		intents:     intents,
		stationName: stationName,
	}, nil
}

// Start listens for messages until ctx is done
func (t *TelegramBot) Start(ctx context.Context) {
	log.Info().Str("account", t.bot.Self.UserName).Msg("Authorized on Telegram account")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	log.Info().Msg("Bot is now listening for messages...")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			log.Info().Str("user", userName(update.Message)).Str("text", update.Message.Text).Msg("Received message")

			msg := tgbotapi.NewMessage(update.Message.Chat.ID, t.reply(ctx, update.Message))
			if _, err := t.bot.Send(msg); err != nil {
				log.Error().Err(err).Msg("Error sending message")
			}
		}
	}
}

// reply builds the answer to one message
func (t *TelegramBot) reply(ctx context.Context, message *tgbotapi.Message) string {
	if message.IsCommand() {
		return t.handleCommand(ctx, message.Command(), strings.TrimSpace(message.CommandArguments()))
	}
	return t.handleNonCommand(ctx, message.Text)
}

// handleCommand answers /start, /help, /status and /history
func (t *TelegramBot) handleCommand(ctx context.Context, command, args string) string {
	switch command {
	case "start":
		return "ยินดีต้อนรับสู่บอทแจ้งเตือนระดับน้ำ ใช้ /status เพื่อดูระดับน้ำล่าสุด หรือ /help เพื่อดูคำสั่งทั้งหมด"

	case "help":
		help := "คำสั่งที่ใช้ได้:\n" +
			"/start - เริ่มใช้งาน\n" +
			"/status - ระดับน้ำล่าสุด\n"
		if t.useCase.HasHistory() {
			help += "/history [n] - ระดับน้ำย้อนหลัง n รายการ\n"
		}
		return help + "/help - แสดงข้อความนี้"

	case "status":
		ctx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()
		st, err := t.useCase.GetLatest(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Error fetching latest reading")
			return "ไม่สามารถอ่านข้อมูลได้ กรุณาลองใหม่ภายหลัง"
		}
		return t.useCase.FormatStatus(st)

	case "history":
		if !t.useCase.HasHistory() {
			return "ไม่มีประวัติระดับน้ำสำหรับการจัดเก็บแบบไฟล์"
		}
		limit := defaultHistory
		if args != "" {
			n, err := strconv.Atoi(args)
			if err != nil || n <= 0 {
				return "กรุณาระบุจำนวนเป็นตัวเลข เช่น /history 5"
			}
			limit = min(n, maxHistory)
		}
		ctx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()
		states, err := t.useCase.GetHistory(ctx, limit)
		if err != nil {
			log.Error().Err(err).Msg("Error fetching reading history")
			return "ไม่สามารถอ่านข้อมูลได้ กรุณาลองใหม่ภายหลัง"
		}
		return t.useCase.FormatHistory(states)

	default:
		log.Info().Str("command", command).Msg("Received unknown command")
		return "ไม่รู้จักคำสั่งนี้ ใช้ /help เพื่อดูคำสั่งทั้งหมด"
	}
}

// handleNonCommand routes free text through the intent service when one is configured
func (t *TelegramBot) handleNonCommand(ctx context.Context, text string) string {
	const fallback = "ไม่เข้าใจคำสั่ง ใช้ /help เพื่อดูคำสั่งทั้งหมด"
	if t.intents == nil || strings.TrimSpace(text) == "" {
		return fallback
	}

	intent, err := t.intents.Interpret(ctx, text, t.stationName)
	if err != nil {
		log.Error().Err(err).Msg("Error interpreting message")
		return fallback
	}
	log.Info().Str("command", intent.Command).Int("limit", intent.Limit).Msg("Interpreted message")

	if intent.Command == openai.CommandNone {
		if intent.UserMessage != "" {
			return intent.UserMessage
		}
		return fallback
	}
	args := ""
	if intent.Command == openai.CommandHistory && intent.Limit > 0 {
		args = strconv.Itoa(intent.Limit)
	}
	answer := t.handleCommand(ctx, intent.Command, args)
	if intent.UserMessage != "" {
		answer = intent.UserMessage + "\n\n" + answer
	}
	return answer
}

func userName(m *tgbotapi.Message) string {
	if m.From == nil {
		return ""
	}
	return m.From.UserName
}
