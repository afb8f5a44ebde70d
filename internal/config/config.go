package config

import (
	"os"
	"strconv"
	"strings"
)

// Config is the process configuration, read once at startup.
type Config struct {
	HTTPAddr    string
	RunLocal    bool
	ServiceName string

	ProductsTable      string
	CouponsTable       string
	OrdersTable        string
	UsersTable         string
	NotificationsTable string
	PaymentsQueueURL   string
	MetricsNamespace   string

	RedisAddr    string
	KafkaBrokers []string

	MercadoPagoToken   string
	MercadoPagoBaseURL string
	FrontendURL        string
	BackendURL         string

	FirebaseProjectID   string
	FirebaseClientEmail string
	FirebasePrivateKey  string

	ViaCEPBaseURL     string
	ShippingRatesFile string

	// CouponClampFixed also caps fixed-amount coupons at max_discount.
	CouponClampFixed bool
	// RestoreStockOnReject puts reserved stock back when the gateway rejects a payment.
	RestoreStockOnReject bool
}

func Load() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		RunLocal:    getbool("RUN_LOCAL", false),
		ServiceName: getenv("SERVICE_NAME", "storefront-api"),

		ProductsTable:      getenv("PRODUCTS_TABLE", "products"),
		CouponsTable:       getenv("COUPONS_TABLE", "coupons"),
		OrdersTable:        getenv("ORDERS_TABLE", "orders"),
		UsersTable:         getenv("USERS_TABLE", "users"),
		NotificationsTable: getenv("NOTIFICATIONS_TABLE", "notifications"),
		PaymentsQueueURL:   os.Getenv("PAYMENTS_QUEUE_URL"),
		MetricsNamespace:   getenv("METRICS_NAMESPACE", "Storefront"),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),

		MercadoPagoToken:   os.Getenv("MERCADOPAGO_ACCESS_TOKEN"),
		MercadoPagoBaseURL: getenv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"),
		FrontendURL:        getenv("FRONTEND_URL", "http://localhost:5173"),
		BackendURL:         getenv("BACKEND_URL", "http://localhost:8080"),

		FirebaseProjectID:   os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseClientEmail: os.Getenv("FIREBASE_CLIENT_EMAIL"),
		// keys pasted into .env files carry literal \n sequences
		FirebasePrivateKey: strings.ReplaceAll(os.Getenv("FIREBASE_PRIVATE_KEY"), `\n`, "\n"),

		ViaCEPBaseURL:     getenv("VIACEP_BASE_URL", "https://viacep.com.br/ws"),
		ShippingRatesFile: os.Getenv("SHIPPING_RATES_FILE"),

		CouponClampFixed:     getbool("COUPON_CLAMP_FIXED", false),
		RestoreStockOnReject: getbool("RESTORE_STOCK_ON_REJECT", false),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getbool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
