package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/chris/sessioned-bank-transactions/pkg/accrual"
	"github.com/chris/sessioned-bank-transactions/pkg/models"
	"github.com/chris/sessioned-bank-transactions/pkg/queue"
	"github.com/chris/sessioned-bank-transactions/pkg/storage/postgres"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var producer *accrual.Producer

func init() {
	// Load environment variables for local testing.
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadDefaultConfig(context.TODO())
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
	store, err := postgres.New(context.TODO(), dbSource)
	if err != nil {
		log.Fatalf("unable to connect to database: %v", err)
	}

	producer = accrual.New(store, q, logger)

	if raw := os.Getenv("ACCRUAL_DAILY_RATE"); raw != "" {
		rate, err := decimal.NewFromString(raw)
		if err != nil || rate.IsNegative() {
			log.Fatalf("invalid ACCRUAL_DAILY_RATE: %q", raw)
		}
		producer.Rate = rate
	}
	if raw := os.Getenv("ACCRUAL_PERIOD"); raw != "" {
		producer.Period = models.InterestPeriod(raw)
	}
}

// HandleRequest is triggered by an EventBridge Schedule. It enqueues one
// interest message per interest-bearing account with a positive balance;
// the deterministic message id makes repeated runs for the same day no-ops.
func HandleRequest(ctx context.Context) error {
	enqueued, err := producer.RunOnce(ctx)
	if err != nil {
		log.Printf("ERROR: interest accrual sweep failed: %v", err)
		return err
	}
	log.Printf("Interest accrual sweep finished, enqueued %d messages", enqueued)
	return nil
}

func main() {
	lambda.Start(HandleRequest)
}
