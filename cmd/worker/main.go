package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/config"
	"github.com/imrishuroy/go-storefront/internal/coupons"
	domain "github.com/imrishuroy/go-storefront/internal/events"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
)

// notificationTTL is how long a processed notification is remembered. The
// gateway stops retrying well before that.
const notificationTTL = 72 * time.Hour

func main() {
	// .env is optional; deployed functions get their environment from Lambda
	_ = godotenv.Load()
	cfg := config.Load()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	couponStore := coupons.NewStore(clients.DynamoDB, cfg.CouponsTable)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.ProductsTable).
		WithCoupons(couponStore).
		WithRestoreOnReject(cfg.RestoreStockOnReject)
	emitter := domain.NewEmitter(cfg.KafkaBrokers, cfg.ServiceName+"-worker")
	defer emitter.Close()

	p := NewProcessor(
		payments.NewClient(cfg.MercadoPagoBaseURL, cfg.MercadoPagoToken, nil),
		idempotency.NewStore(clients.DynamoDB, cfg.NotificationsTable, notificationTTL),
		orderStore,
		aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace),
		emitter,
	)

	// If RUN_LOCAL=true, process a single simulated SQS event and exit.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"payment_id":"local-payment-1","type":"payment"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{
					MessageId: "local-1",
					Body:      testBody,
				},
			},
		}
		resp, err := p.Handle(context.Background(), event)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			log.Fatalf("local handler error: %v (failures: %d)", err, len(resp.BatchItemFailures))
		}
		return
	}

	lambda.Start(p.Handle)
}
