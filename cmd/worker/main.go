// The worker drives the session scheduler: on a fixed tick it discovers
// accounts with queued messages and drains each account's session, bounded
// and concurrent. It optionally runs the daily interest accrual sweep when
// no scheduled lambda handles it.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/chris/sessioned-bank-transactions/pkg/accrual"
	"github.com/chris/sessioned-bank-transactions/pkg/applier"
	"github.com/chris/sessioned-bank-transactions/pkg/processor"
	"github.com/chris/sessioned-bank-transactions/pkg/queue"
	"github.com/chris/sessioned-bank-transactions/pkg/storage/postgres"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	queueURL := os.Getenv("SQS_QUEUE_URL")
	deadLetterURL := os.Getenv("SQS_DEAD_LETTER_URL")
	sessionTable := os.Getenv("DYNAMODB_SESSIONS_TABLE_NAME")
	if queueURL == "" || deadLetterURL == "" || sessionTable == "" {
		log.Fatal("SQS_QUEUE_URL, SQS_DEAD_LETTER_URL and DYNAMODB_SESSIONS_TABLE_NAME must be set")
	}

	q := queue.NewSQSQueue(
		sqs.NewFromConfig(cfg),
		dynamodb.NewFromConfig(cfg),
		queueURL, deadLetterURL, sessionTable,
	)

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		log.Fatal("DB_SOURCE environment variable not set")
	}
	store, err := postgres.New(context.Background(), dbSource)
	if err != nil {
		log.Fatalf("unable to connect to database: %v", err)
	}
	defer store.Close()

	app := applier.New(store, logger)
	sessionProcessor := processor.NewSessionProcessor(q, app, logger)
	scheduler := processor.NewScheduler(q, sessionProcessor, logger)

	if raw := os.Getenv("SCHEDULER_INTERVAL_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 1 {
			log.Fatalf("invalid SCHEDULER_INTERVAL_SECONDS: %q", raw)
		}
		scheduler.Interval = time.Duration(seconds) * time.Second
	}
	if raw := os.Getenv("SCHEDULER_MAX_CONCURRENCY"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			log.Fatalf("invalid SCHEDULER_MAX_CONCURRENCY: %q", raw)
		}
		scheduler.MaxConcurrency = n
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if os.Getenv("ACCRUAL_ENABLED") == "true" {
		producer := accrual.New(store, q, logger)
		go producer.Run(ctx, 24*time.Hour)
	}

	// Blocks until the context is canceled, then lets in-flight sessions
	// finish their current message.
	scheduler.Run(ctx)
}
