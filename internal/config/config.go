package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN   string
	MongoURI      string
	RedisAddr     string
	RabbitURL     string
	ListenAddr    string
	OTLPEndpoint  string
	PaystackKey   string
	PaystackURL   string
	WebhookSecret string

	// Policy constants.
	MinPayout       int64         // minor units
	EarningsLock    time.Duration // how long sale earnings stay locked after event end
	ProviderTimeout time.Duration // per-call bound on gateway requests
	SoldGates       bool          // ticket-type sold counters gate issuance when true
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	minPayout, _ := strconv.ParseInt(os.Getenv("MIN_PAYOUT"), 10, 64)
	if minPayout == 0 {
		minPayout = 1000
	}
	earningsLock, _ := time.ParseDuration(os.Getenv("EARNINGS_LOCK"))
	if earningsLock == 0 {
		earningsLock = time.Hour
	}
	providerTimeout, _ := time.ParseDuration(os.Getenv("PROVIDER_TIMEOUT"))
	if providerTimeout == 0 {
		providerTimeout = 15 * time.Second
	}
	listen := os.Getenv("LISTEN_ADDR")
	if listen == "" {
		listen = ":8080"
	}
	paystackURL := os.Getenv("PAYSTACK_URL")
	if paystackURL == "" {
		paystackURL = "https://api.paystack.co"
	}
	soldGates, _ := strconv.ParseBool(os.Getenv("TICKET_SOLD_GATES_CAPACITY"))

	return &Config{
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		MongoURI:        os.Getenv("MONGO_URI"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RabbitURL:       os.Getenv("RABBIT_URL"),
		ListenAddr:      listen,
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PaystackKey:     os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackURL:     paystackURL,
		WebhookSecret:   os.Getenv("PAYSTACK_WEBHOOK_SECRET"),
		MinPayout:       minPayout,
		EarningsLock:    earningsLock,
		ProviderTimeout: providerTimeout,
		SoldGates:       soldGates,
	}, nil
}
