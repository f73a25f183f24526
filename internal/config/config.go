package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// CallbackBaseURL is the externally reachable base URL gateways redirect
	// back to after payment, e.g. https://pay.example.com
	CallbackBaseURL string

	// EscrowWalletID identifies the intermediary holding wallet. May be blank;
	// the escrow provider substitutes a sentinel so initiation never blocks.
	EscrowWalletID string

	Zarinpal GatewayCredentials
	Zibal    GatewayCredentials
}

// GatewayCredentials carries per-provider merchant configuration.
type GatewayCredentials struct {
	MerchantID  string
	AccessToken string
	Sandbox     bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "paygate"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "paygate"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		CallbackBaseURL: strings.TrimRight(getenv("CALLBACK_BASE_URL", "http://localhost:8080"), "/"),
		EscrowWalletID:  getenv("ESCROW_WALLET_ID", ""),

		Zarinpal: GatewayCredentials{
			MerchantID:  strings.TrimSpace(getenv("ZARINPAL_MERCHANT_ID", "")),
			AccessToken: strings.TrimSpace(getenv("ZARINPAL_ACCESS_TOKEN", "")),
			Sandbox:     getenvBool("ZARINPAL_SANDBOX", false),
		},
		Zibal: GatewayCredentials{
			MerchantID:  strings.TrimSpace(getenv("ZIBAL_MERCHANT_ID", "")),
			AccessToken: strings.TrimSpace(getenv("ZIBAL_ACCESS_TOKEN", "")),
			Sandbox:     getenvBool("ZIBAL_SANDBOX", false),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
