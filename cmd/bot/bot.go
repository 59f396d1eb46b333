package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelzeko/river-alert/internal/api"
	"github.com/abelzeko/river-alert/internal/config"
	"github.com/abelzeko/river-alert/internal/integration"
	"github.com/abelzeko/river-alert/internal/integration/openai"
	"github.com/abelzeko/river-alert/internal/logging"
	"github.com/abelzeko/river-alert/internal/repository"
	"github.com/abelzeko/river-alert/internal/usecases"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	logging.Setup(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log.Info().Msg("Starting river alert bot...")

	if cfg.TelegramBotToken == "" {
		log.Fatal().Msg("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	sources, err := integration.LoadSourceConfig(cfg.SourceConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load station sources")
	}

	// Open the same state the watcher writes
	var store repository.StateStore
	if cfg.StateBackend == config.BackendSQLite {
		store, err = repository.NewSQLiteStateStore(cfg.StateFile, sources.StationID)
	} else {
		store, err = repository.NewFileStateStore(cfg.StateFile)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize state store")
	}
	defer store.Close()

	useCase := usecases.NewStatusUseCase(store)

	// Free-text questions are understood only with an OpenAI key
	var intents openai.IntentService
	if cfg.OpenAIAPIKey != "" {
		intents, err = openai.NewIntentService(cfg.OpenAIAPIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize OpenAI service")
		}
	} else {
		log.Warn().Msg("OPENAI_API_KEY is not set, only commands will be answered")
	}

	telegramBot, err := api.NewTelegramBot(cfg.TelegramBotToken, useCase, intents, sources.StationName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	telegramBot.Start(ctx)
}
