package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/listing-draft-bot/config"
	"github.com/raine/listing-draft-bot/internal/backend"
	"github.com/raine/listing-draft-bot/internal/bot"
	"github.com/raine/listing-draft-bot/internal/llm"
	"github.com/raine/listing-draft-bot/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "listing-draft-bot.log"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	config.LoadEnvFile()
	cfg := config.FromEnv()

	if missing := cfg.Missing(); len(missing) > 0 {
		if !config.IsInteractiveTerminal() {
			// Non-interactive (systemd, k8s, etc.) - fail with clear error
			config.FatalWithWait("missing required config: %s", strings.Join(missing, ", "))
		}
		if !config.RunSetupWizard() {
			config.WaitOnWindows()
			os.Exit(1)
		}
		cfg = config.FromEnv()
	}

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it, and ProtectSystem=strict
	// makes the working directory read-only).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile := &lumberjack.Logger{
			Filename:   logFileName,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		config.FatalWithWait("failed to initialize telegram bot: %v", err)
	}
	tg.Debug = false
	log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

	bot.RegisterCommands(tg)

	encryptionKey, err := storage.DeriveKey(cfg.SecretKey)
	if err != nil {
		config.FatalWithWait("failed to derive encryption key: %v", err)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		config.FatalWithWait("failed to initialize store: %v", err)
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("store initialized")

	backends := backend.NewFactory(backend.Options{
		Defaults:      cfg.Credentials,
		MarketplaceID: cfg.MarketplaceID,
		EbayBaseURL:   cfg.EbayBaseURL,
	})

	// Photo identification needs the operator's key; users without one can
	// still use /item.
	var identifier llm.Identifier
	if gemini := backends.Gemini(cfg.Credentials); gemini != nil {
		identifier = llm.NewCachedIdentifier(gemini, store)
		log.Info().Msg("photo identification enabled with caching")
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, photo identification disabled")
	}

	b := bot.NewBot(tg, bot.Options{
		KV:                 store,
		Credentials:        storage.NewCredentialStore(store, encryptionKey),
		Allowlist:          store,
		Identifier:         identifier,
		Backends:           backends,
		DefaultCredentials: cfg.Credentials,
		AdminID:            cfg.AdminTelegramID,
	})
	defer b.Shutdown()

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runBot(ctx, tg, b)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, b *bot.Bot) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			tg.StopReceivingUpdates()
			log.Info().Msg("waiting for active handlers to finish")
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}(update)
		}
	}
}
