package admin

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/replygate/internal/api/handlers"
	"github.com/cloo-solutions/replygate/internal/config"
	"github.com/cloo-solutions/replygate/internal/database"
	"github.com/cloo-solutions/replygate/internal/jobs"
	"github.com/cloo-solutions/replygate/internal/notify"
	"github.com/cloo-solutions/replygate/internal/openai"
	"github.com/cloo-solutions/replygate/internal/pubsub"
	"github.com/cloo-solutions/replygate/internal/repository"
	"github.com/cloo-solutions/replygate/internal/server"
	"github.com/cloo-solutions/replygate/internal/service"
	"github.com/cloo-solutions/replygate/internal/telemetry"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the replygate API server, the delivery retry worker and the change stream",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", "migrations", "Directory holding migration files")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetString("port")
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		dir, _ := cmd.Flags().GetString("migrations")
		if err := database.Migrate(cfg.DatabaseURL, dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// The pool is opened after migrating so the vector type is registered on every connection.
	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Println("connected to database")

	apiClient := newAPIClient(cfg)
	knowledge, err := newKnowledgeStack(ctx, cfg, pool, apiClient)
	if err != nil {
		return err
	}

	var generator service.Generator = unconfiguredGenerator{}
	if apiClient != nil {
		generator = openai.NewGenerator(apiClient)
	} else {
		log.Println("generate: no OpenAI key configured, generation requests will fail")
	}

	deliveryRepo := repository.NewDeliveryRepository(pool)
	dispatcher := notify.NewDispatcher(notifyChannels(cfg),
		notify.WithConcurrency(cfg.DispatchConcurrency),
		notify.WithTimeout(cfg.DispatchTimeout),
		notify.WithSpool(deliveryRepo),
	)
	log.Printf("notify: channels %v", dispatcher.Channels())

	deliveryWorker := jobs.NewWorker(jobs.NewDeliveryWorker(deliveryRepo, dispatcher), cfg.DeliveryRetryInterval)
	go deliveryWorker.Start(ctx)

	registry := pubsub.NewRegistry()
	settingsSvc := service.NewSettingsService(repository.NewSettingsRepository(pool), cfg.DefaultAISettings())
	responseSvc := service.NewResponseService(service.ResponseServiceDeps{
		Generator:  service.NewResponseGenerator(generator, knowledge.index, cfg.GenerationTimeout),
		Responses:  repository.NewResponseRepository(pool),
		Reviews:    repository.NewReviewRepository(pool),
		Tickets:    repository.NewTicketRepository(pool),
		Settings:   settingsSvc,
		TxRunner:   repository.NewTxRunner(pool),
		Dispatcher: dispatcher,
		Publisher:  registry,
	})

	router := server.NewRouter(server.RouterConfig{
		KnowledgeHandler: handlers.NewKnowledgeHandler(knowledge.service),
		ResponseHandler:  handlers.NewResponseHandler(responseSvc),
		SettingsHandler:  handlers.NewSettingsHandler(settingsSvc),
		StreamHandler:    handlers.NewStreamHandler(registry),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stream handlers only return when their request context ends.
	srv.RegisterOnShutdown(cancel)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	deliveryWorker.Stop()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Printf("notify: %v", err)
	}

	log.Println("server exited")
	return nil
}

func notifyChannels(cfg *config.Config) []notify.Channel {
	var channels []notify.Channel
	if cfg.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookChannel(cfg.WebhookURL, cfg.WebhookSecret))
	}
	if cfg.ChatWebhookURL != "" {
		channels = append(channels, notify.NewChatChannel(cfg.ChatWebhookURL))
	}
	return channels
}
