package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/grocery-delivery/internal/config"
	"github.com/example/grocery-delivery/internal/email"
	"github.com/example/grocery-delivery/internal/infrastructure/kafka"
	"github.com/example/grocery-delivery/internal/infrastructure/store"
	"github.com/example/grocery-delivery/internal/logger"
	"github.com/example/grocery-delivery/internal/notification"
)

const consumerGroup = "email-notifier"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	base := logger.New(logger.Options{Service: "notifier", Env: cfg.AppEnv, Level: cfg.LogLevel})
	log := logger.Component(base, "Notifier")

	if !cfg.KafkaEnabled() {
		log.Error("KAFKA_BROKERS is required")
		os.Exit(1)
	}

	dialect := store.Dialect(cfg.DatabaseDriver)
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	sqlStore := store.NewSQLStore(db, dialect, logger.Component(base, "Store"))
	defer sqlStore.Close()

	var sender email.Sender
	if cfg.PostmarkServerToken != "" {
		sender = email.NewPostmarkSender(cfg.PostmarkServerToken, cfg.SMTPFrom)
		log.Info("sending mail via Postmark", "from", cfg.SMTPFrom)
	} else {
		sender = email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
		log.Info("sending mail via SMTP", "host", cfg.SMTPHost, "port", cfg.SMTPPort, "from", cfg.SMTPFrom)
	}

	handler := notification.NewHandler(email.NewService(sender), sqlStore.Users(), log)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, consumerGroup, logger.Component(base, "Consumer"))
	defer consumer.Close()

	log.Info("listening", "topic", cfg.KafkaTopic, "group", consumerGroup)
	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
	log.Info("shutting down")
}
