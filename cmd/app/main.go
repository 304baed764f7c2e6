package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/chris/sessioned-bank-transactions/pkg/applier"
	"github.com/chris/sessioned-bank-transactions/pkg/handlers"
	appmiddleware "github.com/chris/sessioned-bank-transactions/pkg/middleware"
	"github.com/chris/sessioned-bank-transactions/pkg/processor"
	"github.com/chris/sessioned-bank-transactions/pkg/queue"
	"github.com/chris/sessioned-bank-transactions/pkg/storage/postgres"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// AWS clients
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

	// Ledger store
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		log.Fatal("DB_SOURCE environment variable not set")
	}
	store, err := postgres.New(context.Background(), dbSource)
	if err != nil {
		log.Fatalf("unable to connect to database: %v", err)
	}
	defer store.Close()

	// Processing engine, exposed for manual triggers
	app := applier.New(store, logger)
	sessionProcessor := processor.NewSessionProcessor(q, app, logger)
	scheduler := processor.NewScheduler(q, sessionProcessor, logger)

	handler := handlers.NewApiHandler(q, store, sessionProcessor, scheduler, logger)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(appmiddleware.RequestLogger(logger))

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	handler.Routes(router)

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info("starting api server", slog.String("port", port))
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
