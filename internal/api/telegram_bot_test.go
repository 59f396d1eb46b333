package api

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abelzeko/river-alert/internal/entities"
	"github.com/abelzeko/river-alert/internal/integration/openai"
	"github.com/abelzeko/river-alert/internal/repository"
	"github.com/abelzeko/river-alert/internal/usecases"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func command(text string) *tgbotapi.Message {
	name := strings.Fields(text)[0]
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{UserName: "tester"},
		Chat:     &tgbotapi.Chat{ID: 42},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func saveReadings(t *testing.T, store repository.StateStore, levels ...float64) {
	t.Helper()
	loc := time.FixedZone("ICT", 7*60*60)
	bank := 13.0
	for i, level := range levels {
		st := entities.StoredState{
			StationID:   "inburi",
			StationName: "อินทร์บุรี",
			WaterLevelM: level,
			BankLevelM:  &bank,
			StatusText:  "ปกติ",
			ObservedAt:  time.Date(2024, 10, 15, 6+i, 0, 0, 0, loc),
		}
		if err := store.Save(context.Background(), st); err != nil {
			t.Fatalf("Failed to save reading: %v", err)
		}
	}
}

func TestReplyWithFileStore(t *testing.T) {
	store, err := repository.NewFileStateStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	bot := &TelegramBot{useCase: usecases.NewStatusUseCase(store)}
	ctx := context.Background()

	if got := bot.reply(ctx, command("/status")); got != "ยังไม่มีข้อมูลระดับน้ำ" {
		t.Errorf("unexpected reply before first run: %q", got)
	}

	saveReadings(t, store, 12.40)
	got := bot.reply(ctx, command("/status"))
	if !strings.Contains(got, "ระดับน้ำ: 12.40 ม.") || !strings.Contains(got, "ห่างจากตลิ่ง: 0.60 ม.") {
		t.Errorf("unexpected status reply:\n%s", got)
	}

	if got := bot.reply(ctx, command("/help")); strings.Contains(got, "/history") {
		t.Errorf("help must not offer /history without a history backend:\n%s", got)
	}
	if got := bot.reply(ctx, command("/history")); !strings.Contains(got, "ไม่มีประวัติ") {
		t.Errorf("unexpected history reply: %q", got)
	}
}

func TestReplyHistory(t *testing.T) {
	store, err := repository.NewSQLiteStateStore(filepath.Join(t.TempDir(), "state.db"), "inburi")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()
	saveReadings(t, store, 12.10, 12.25, 12.40)
	bot := &TelegramBot{useCase: usecases.NewStatusUseCase(store)}
	ctx := context.Background()

	if got := bot.reply(ctx, command("/help")); !strings.Contains(got, "/history") {
		t.Errorf("help should offer /history:\n%s", got)
	}

	got := bot.reply(ctx, command("/history 2"))
	lines := strings.Split(got, "\n")
	// header, blank line, two entries
	if len(lines) != 4 {
		t.Fatalf("expected two history entries, got:\n%s", got)
	}
	if !strings.Contains(lines[2], "12.40 ม. (+0.15)") || !strings.Contains(lines[3], "12.25 ม.") {
		t.Errorf("unexpected history:\n%s", got)
	}

	if got := bot.reply(ctx, command("/history many")); !strings.Contains(got, "/history 5") {
		t.Errorf("expected usage hint, got %q", got)
	}
}

func TestReplyUnknownInput(t *testing.T) {
	bot := &TelegramBot{}
	if got := bot.reply(context.Background(), command("/rivers")); !strings.Contains(got, "/help") {
		t.Errorf("unexpected reply to unknown command: %q", got)
	}
	plain := &tgbotapi.Message{Text: "สวัสดี", Chat: &tgbotapi.Chat{ID: 1}}
	if got := bot.reply(context.Background(), plain); !strings.Contains(got, "/help") {
		t.Errorf("unexpected reply to plain text: %q", got)
	}
}

type fakeIntents struct {
	intent *openai.Intent
	err    error
	seen   []string
}

func (f *fakeIntents) Interpret(_ context.Context, message, stationName string) (*openai.Intent, error) {
	f.seen = append(f.seen, message+"@"+stationName)
	return f.intent, f.err
}

func TestReplyFreeText(t *testing.T) {
	store, err := repository.NewSQLiteStateStore(filepath.Join(t.TempDir(), "state.db"), "inburi")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()
	saveReadings(t, store, 12.10, 12.25, 12.40)

	plain := func(text string) *tgbotapi.Message {
		return &tgbotapi.Message{Text: text, Chat: &tgbotapi.Chat{ID: 1}}
	}
	ctx := context.Background()

	tests := []struct {
		name   string
		intent *openai.Intent
		err    error
		want   []string
	}{
		{
			name:   "status",
			intent: &openai.Intent{Command: openai.CommandStatus, UserMessage: "ระดับน้ำล่าสุดครับ"},
			want:   []string{"ระดับน้ำล่าสุดครับ\n\n", "ระดับน้ำ: 12.40 ม."},
		},
		{
			name:   "history with limit",
			intent: &openai.Intent{Command: openai.CommandHistory, Limit: 2},
			want:   []string{"ประวัติระดับน้ำ:", "12.40 ม. (+0.15)"},
		},
		{
			name:   "small talk",
			intent: &openai.Intent{Command: openai.CommandNone, UserMessage: "สวัสดีครับ"},
			want:   []string{"สวัสดีครับ"},
		},
		{
			name: "service failure",
			err:  errors.New("rate limited"),
			want: []string{"/help"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents := &fakeIntents{intent: tt.intent, err: tt.err}
			bot := &TelegramBot{useCase: usecases.NewStatusUseCase(store), intents: intents, stationName: "อินทร์บุรี"}

			got := bot.reply(ctx, plain("น้ำตอนนี้เป็นยังไง"))
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("expected %q in reply:\n%s", want, got)
				}
			}
			if len(intents.seen) != 1 || intents.seen[0] != "น้ำตอนนี้เป็นยังไง@อินทร์บุรี" {
				t.Errorf("unexpected interpret calls: %v", intents.seen)
			}
		})
	}

	t.Run("history limit", func(t *testing.T) {
		bot := &TelegramBot{
			useCase: usecases.NewStatusUseCase(store),
			intents: &fakeIntents{intent: &openai.Intent{Command: openai.CommandHistory, Limit: 1}},
		}
		got := bot.reply(ctx, plain("ขอย้อนหลัง"))
		if n := strings.Count(got, " ม."); n != 1 {
			t.Errorf("expected one history entry, got %d:\n%s", n, got)
		}
	})
}
