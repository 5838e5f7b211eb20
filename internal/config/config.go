package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server              ServerConfig
	Database            DatabaseConfig
	Redis               RedisConfig
	Kafka               KafkaConfig
	Provider            ProviderConfig
	Pricing             PricingConfig
	NotificationService ServiceConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

func (d DatabaseConfig) ConnectionString() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

type KafkaConfig struct {
	Brokers     []string
	OrdersTopic string
}

// ProviderConfig holds the payment provider connection and webhook signing
// settings.
type ProviderConfig struct {
	BaseURL            string
	SecretKey          string
	WebhookSecret      string
	SignatureTolerance time.Duration
	Timeout            time.Duration
}

// PricingConfig carries the business constants applied at order
// materialization. Rates and fees are configuration, not engine logic.
type PricingConfig struct {
	Currency           string
	MemberDiscountBps  int64 // member discount in basis points, 500 = 5%
	GuestShippingCents int64 // flat shipping fee charged to guests
	MinimumChargeCents int64 // provider floor for a charge, 50 = $0.50
}

type ServiceConfig struct {
	BaseURL string
	Timeout time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8082),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnvString("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 5432),
			User:         getEnvString("DB_USER", "spooky"),
			Password:     getEnvString("DB_PASSWORD", "spooky"),
			Name:         getEnvString("DB_NAME", "spooky_orders"),
			SSLMode:      getEnvString("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvInt("REDIS_TTL_SECONDS", 300)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:     strings.Split(getEnvString("KAFKA_BROKERS", "localhost:9092"), ","),
			OrdersTopic: getEnvString("KAFKA_ORDERS_TOPIC", "orders.events"),
		},
		Provider: ProviderConfig{
			BaseURL:            getEnvString("PAYMENT_PROVIDER_URL", "https://api.stripe.com"),
			SecretKey:          getEnvString("PAYMENT_PROVIDER_SECRET_KEY", ""),
			WebhookSecret:      getEnvString("PAYMENT_WEBHOOK_SECRET", ""),
			SignatureTolerance: time.Duration(getEnvInt("PAYMENT_SIGNATURE_TOLERANCE", 300)) * time.Second,
			Timeout:            time.Duration(getEnvInt("PAYMENT_PROVIDER_TIMEOUT", 30)) * time.Second,
		},
		Pricing: PricingConfig{
			Currency:           getEnvString("PRICING_CURRENCY", "USD"),
			MemberDiscountBps:  int64(getEnvInt("PRICING_MEMBER_DISCOUNT_BPS", 500)),
			GuestShippingCents: int64(getEnvInt("PRICING_GUEST_SHIPPING_CENTS", 999)),
			MinimumChargeCents: int64(getEnvInt("PRICING_MINIMUM_CHARGE_CENTS", 50)),
		},
		NotificationService: ServiceConfig{
			BaseURL: getEnvString("NOTIFICATION_SERVICE_URL", "http://localhost:8085"),
			Timeout: time.Duration(getEnvInt("NOTIFICATION_SERVICE_TIMEOUT", 10)) * time.Second,
		},
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
