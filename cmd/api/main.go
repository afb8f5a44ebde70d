package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/config"
	"github.com/imrishuroy/go-storefront/internal/coupons"
	domain "github.com/imrishuroy/go-storefront/internal/events"
	"github.com/imrishuroy/go-storefront/internal/handlers"
	"github.com/imrishuroy/go-storefront/internal/identity"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
	"github.com/imrishuroy/go-storefront/internal/shipping"
	"github.com/imrishuroy/go-storefront/internal/users"
)

func setupRouter(deps handlers.Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), handlers.CORS())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "storefront API", "status": "online"})
	})

	handlers.Register(r, deps)

	return r
}

// addressLookup caches ViaCEP answers in Redis when an address is configured.
func addressLookup(cfg config.Config, hc *http.Client) shipping.AddressLookup {
	viacep := shipping.NewViaCEP(cfg.ViaCEPBaseURL, hc)
	if cfg.RedisAddr == "" {
		return viacep
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return shipping.NewCachedLookup(viacep, rdb)
}

func main() {
	// .env is optional; deployed functions get their environment from Lambda
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	verifier, err := identity.NewFirebaseVerifier(ctx, identity.Credentials{
		ProjectID:   cfg.FirebaseProjectID,
		ClientEmail: cfg.FirebaseClientEmail,
		PrivateKey:  cfg.FirebasePrivateKey,
	})
	if err != nil {
		log.Fatalf("failed to init identity verifier: %v", err)
	}

	rates := shipping.DefaultTable()
	if cfg.ShippingRatesFile != "" {
		if rates, err = shipping.LoadTable(cfg.ShippingRatesFile); err != nil {
			log.Fatalf("failed to load shipping rates: %v", err)
		}
	}

	hc := &http.Client{Timeout: 10 * time.Second}
	couponStore := coupons.NewStore(clients.DynamoDB, cfg.CouponsTable)
	emitter := domain.NewEmitter(cfg.KafkaBrokers, cfg.ServiceName)
	defer emitter.Close()

	r := setupRouter(handlers.Deps{
		Products:  catalog.NewStore(clients.DynamoDB, cfg.ProductsTable),
		Coupons:   couponStore,
		Engine:    coupons.NewEngine(couponStore, cfg.CouponClampFixed),
		Orders:    orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.ProductsTable).WithCoupons(couponStore).WithRestoreOnReject(cfg.RestoreStockOnReject),
		Users:     users.NewStore(clients.DynamoDB, cfg.UsersTable),
		Verifier:  verifier,
		Gateway:   payments.NewClient(cfg.MercadoPagoBaseURL, cfg.MercadoPagoToken, hc),
		Queue:     aws.NewPublisher(clients.SQS, cfg.PaymentsQueueURL),
		Rates:     rates,
		Addresses: addressLookup(cfg, hc),
		Events:    emitter,
		Metrics:   aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace),

		FrontendURL: cfg.FrontendURL,
		BackendURL:  cfg.BackendURL,
	})

	// if RUN_LOCAL is true, run local HTTP server for development.
	if cfg.RunLocal {
		log.Printf("running local server on %s", cfg.HTTPAddr)
		if err := r.Run(cfg.HTTPAddr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
