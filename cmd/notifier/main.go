package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/example/commerce-core/internal/infrastructure/kafka"
	"github.com/example/commerce-core/internal/notification"
	"github.com/example/commerce-core/internal/webhook"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Configuration from environment variables
	kafkaBrokersStr := getEnv("KAFKA_BROKERS", "localhost:9092")
	kafkaBrokers := strings.Split(kafkaBrokersStr, ",")
	kafkaTopic := getEnv("KAFKA_TOPIC", "inventory-events")
	consumerGroup := "webhook-notifier"

	webhookURLsStr := os.Getenv("WEBHOOK_URLS")
	if webhookURLsStr == "" {
		log.Fatal("[Notifier] WEBHOOK_URLS environment variable is required (comma-separated)")
	}
	webhookURLs := splitAndTrim(webhookURLsStr)

	log.Println("[Notifier] ========================================")
	log.Println("[Notifier] Commerce Core - Webhook Notifier")
	log.Println("[Notifier] ========================================")
	log.Printf("[Notifier] Kafka: %v", kafkaBrokers)
	log.Printf("[Notifier] Topic: %s", kafkaTopic)
	log.Printf("[Notifier] Group: %s", consumerGroup)
	log.Printf("[Notifier] Subscribers: %v", webhookURLs)

	// Initialize webhook dispatcher
	dispatcher := webhook.New(webhook.Config{
		MaxRetries: getEnvInt("WEBHOOK_MAX_RETRIES", 0),
		Timeout:    time.Duration(getEnvInt("WEBHOOK_TIMEOUT_MS", 0)) * time.Millisecond,
	})

	// Initialize notification handler
	handler := notification.NewHandler(dispatcher, webhookURLs)

	// Initialize Kafka consumer
	consumer := kafka.NewConsumer(kafkaBrokers, kafkaTopic, consumerGroup)
	defer consumer.Close()

	// Start consuming
	go func() {
		log.Println("[Notifier] Starting event consumer...")
		log.Printf("[Notifier] Listening to topic: %s", kafkaTopic)
		if err := consumer.Consume(ctx, handler.HandleEvent); err != nil {
			log.Printf("[Notifier] Consumer error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Notifier] Shutting down...")
	cancel()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
