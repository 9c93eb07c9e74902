package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"order_assistant/internal/assistant"
	"order_assistant/internal/config"
	"order_assistant/internal/llm"
	"order_assistant/internal/model"
	"order_assistant/internal/prompt"
	"order_assistant/internal/queue"
	"order_assistant/internal/router"
	"order_assistant/internal/store"
	"order_assistant/internal/telegram"
	rediskey "order_assistant/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	var envFile string
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Order assistant: Telegram bot, HTTP events API and order event pipeline",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env when present)")

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AppConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. 连接 SQLite，自动建表（订单归档）
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(&model.OrderRecord{}); err != nil {
		return err
	}

	// 2. 内存状态 + 模型
	sessions := store.NewSessionStore()
	orders := store.NewOrderStore()
	completer, err := llm.New(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel)
	if err != nil {
		return err
	}
	policy, err := assistant.ParseTotalPolicy(cfg.OrderTotalPolicy)
	if err != nil {
		return err
	}
	opts := []assistant.Option{
		assistant.WithAssembler(prompt.NewAssembler(prompt.Persona, cfg.HistoryWindow)),
	}

	var wg sync.WaitGroup
	var rdb *rd.Client
	if cfg.RedisEnabled() {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		opts = append(opts, assistant.WithOrderEvents(queue.NewOutbox(rdb, cfg.OrderEventStream)))

		// 3. Stream -> Kafka -> 归档表
		if cfg.KafkaEnabled() {
			producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
			defer producer.Close()
			consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, db)
			defer consumer.Close()
			relay := queue.NewRelay(rdb, producer, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer)

			wg.Add(2)
			go func() { defer wg.Done(); relay.Run(ctx) }()
			go func() { defer wg.Done(); consumer.Run(ctx) }()
		}
	}

	dispatcher := assistant.New(sessions, orders, completer, assistant.Config{
		WebAppURL:  cfg.WebAppURL,
		SupportURL: cfg.SupportURL,
		Completion: model.CompletionParams{
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		},
		CompletionTimeout: cfg.LLMTimeout,
		TotalPolicy:       policy,
	}, opts...)

	// 4. Telegram 长轮询
	if cfg.TelegramToken != "" {
		var topts []telegram.Option
		if rdb != nil {
			topts = append(topts,
				telegram.WithDeduper(rediskey.UpdateDeduper{RDB: rdb, TTL: cfg.UpdateDedupTTL}),
				telegram.WithLimiter(rediskey.UserRateLimiter{RDB: rdb, Limit: cfg.MessageRateLimit, Window: cfg.MessageRateWindow}),
			)
		}
		tg, err := telegram.New(cfg.TelegramToken, dispatcher, topts...)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() { defer wg.Done(); tg.Run(ctx) }()
	} else {
		slog.Warn("TELEGRAM_TOKEN is empty, only the HTTP events API is served")
	}

	// 5. HTTP
	r := gin.Default()
	router.Setup(r, router.Deps{DB: db, RDB: rdb, Orders: orders, Dispatcher: dispatcher, Cfg: cfg})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		slog.Warn("http shutdown", "err", serr)
	}
	wg.Wait()
	return err
}
