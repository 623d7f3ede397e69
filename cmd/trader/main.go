package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitkub-trade-bot-go/internal/bitkub"
	"bitkub-trade-bot-go/internal/config"
	"bitkub-trade-bot-go/internal/database"
	"bitkub-trade-bot-go/internal/logger"
	"bitkub-trade-bot-go/internal/notify"
	"bitkub-trade-bot-go/internal/trader"
	"bitkub-trade-bot-go/internal/tracing"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "./configs", "config directory or file")
	strategyPath := flag.String("strategy", "", "optional strategy preset (.json or .yml)")
	flag.Parse()

	// Load application configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}
	if *strategyPath != "" {
		if cfg.Strategy, err = config.LoadStrategy(*strategyPath, cfg.Strategy); err != nil {
			fmt.Fprintf(os.Stderr, "could not load strategy preset: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded",
		zap.String("symbol", cfg.Trading.Symbol),
		zap.String("strategy", cfg.Strategy.Name),
		zap.Bool("paper", cfg.Trading.PaperTrading),
	)

	if err := run(cfg, log); err != nil {
		log.Error("Bot stopped with error", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Info("Bot has been shut down.")
}

func run(cfg config.Config, log *zap.Logger) error {
	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(cfg.Tracing)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	// Initialize database
	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return err
	}
	store := database.NewStore(db)
	log.Info("Database connection successful and schema migrated.")

	// Initialize Bitkub REST client
	client := bitkub.NewRestClient(&cfg.Bitkub, log)
	client.SyncTime(ctx)
	statuses, err := client.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Bitkub API: %w", err)
	}
	for _, s := range statuses {
		if !strings.EqualFold(s.Status, "ok") {
			log.Warn("Bitkub endpoint degraded", zap.String("name", s.Name), zap.String("status", s.Status), zap.String("message", s.Message))
		}
	}
	log.Info("Successfully connected to Bitkub API.")

	fees := trader.NewFeeModel(cfg.Strategy)
	var executor trader.OrderExecutor
	if cfg.Trading.PaperTrading {
		log.Warn("Paper trading enabled. No real orders will be placed.", zap.Float64("balance_thb", cfg.Trading.PaperBalance))
		executor = trader.NewPaperExecutor(cfg.Trading.PaperBalance, fees)
	} else {
		if _, err := client.GetWallet(ctx); err != nil {
			return fmt.Errorf("failed to verify API credentials: %w", err)
		}
		executor = trader.NewLiveExecutor(client, fees, log)
	}

	engine, err := trader.NewEngine(log, &cfg, client, store, executor)
	if err != nil {
		return err
	}

	if strings.EqualFold(cfg.Trading.PriceSource, "websocket") {
		stream := bitkub.NewTickerStream(cfg.Bitkub.StreamURL, cfg.Trading.Symbol, log)
		engine.SetTickerSource(stream)
		go func() {
			if err := stream.Run(ctx); err != nil {
				log.Error("Ticker stream stopped", zap.Error(err))
			}
		}()
	}

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if cfg.Notify.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			log.Warn("Telegram notifications disabled", zap.Error(err))
		} else {
			notifier = tg
		}
	}
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		// Forward drains until Run closes the channel, so the final
		// emergency-stop or abort event is still delivered.
		notify.Forward(context.Background(), engine.Events(), notifier, log)
	}()

	api := trader.NewAPIServer(engine, cfg.Server.StatusPort, log)
	api.Start()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := api.Stop(sctx); err != nil {
			log.Error("Failed to stop API server", zap.Error(err))
		}
	}()

	runErr := engine.Run(ctx)
	<-forwarded
	return runErr
}
