package config

import (
	"database/sql" // Isolation levels
	"os"           // For environment variables
	"strconv"      // For string to number conversion
	"strings"      // For list parsing
	"time"         // For durations

	"spray_ledger/internal/escrow" // Commission bounds
	"spray_ledger/internal/store"  // Transaction options

	"github.com/joho/godotenv"      // For loading .env files
	"github.com/shopspring/decimal" // Commission rate
	"github.com/sirupsen/logrus"    // Logging library
)

// Store drivers
const (
	DriverMySQL  = "mysql"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds the application configuration
type Config struct {
	AppPort     string   // Application port
	StoreDriver string   // mysql, mongo or memory
	DBUser      string   // Database user
	DBPassword  string   // Database password
	DBHost      string   // Database host
	DBPort      string   // Database port
	DBName      string   // Database name
	MongoURI    string   // MongoDB connection string, replica set required
	MongoDB     string   // MongoDB database name
	JWTSecret   string   // JWT secret shared with the identity service
	RedisAddr   string   // Redis server address, empty disables cache and locks
	RedisPass   string   // Redis password
	RedisDB     int      // Redis database number
	IsProd      bool     // Is production environment
	LogLevel    string   // logrus level name
	CORSOrigins []string // Allowed browser origins

	TxIsolation    string // read_committed, repeatable_read or serializable
	TxReadConcern  string // snapshot, majority or local
	TxWriteConcern string // majority or a node count

	Commission      decimal.Decimal // Platform share of settled escrow
	DefaultCurrency string          // Currency of new wallets and entries

	RabbitURL      string        // Empty disables the outbox relay
	RabbitExchange string        // Topic exchange for ledger messages
	OutboxInterval time.Duration // Outbox poll interval

	GatewayBaseURL   string // Payment provider API
	GatewayPublicKey string // Merchant public key
	GatewayToken     string // Bearer token
	GatewayCallback  string // Checkout return URL
	GatewayPocketID  string // Payout pocket
	WebhookSecret    string // HMAC key for provider callbacks
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	commission := getCommission("SETTLEMENT_COMMISSION")
	return &Config{
		AppPort:     getEnv("APP_PORT", "8080"),                           // Application port
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverMySQL)), // Backend
		DBUser:      os.Getenv("DB_USER"),                                 // Database user
		DBPassword:  os.Getenv("DB_PASSWORD"),                             // Database password
		DBHost:      getEnv("DB_HOST", "127.0.0.1"),                       // Database host
		DBPort:      getEnv("DB_PORT", "3306"),                            // Database port
		DBName:      os.Getenv("DB_NAME"),                                 // Database name
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		MongoDB:     getEnv("MONGO_DB", "spray"),
		JWTSecret:   os.Getenv("JWT_SECRET"),        // JWT secret key
		RedisAddr:   os.Getenv("REDIS_ADDR"),        // Redis server address
		RedisPass:   os.Getenv("REDIS_PASS"),        // Redis password
		RedisDB:     redisDB,                        // Redis database number
		IsProd:      os.Getenv("IS_PROD") == "true", // Is production environment
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitList(os.Getenv("CORS_ORIGINS")),

		TxIsolation:    getEnv("TX_ISOLATION", "repeatable_read"),
		TxReadConcern:  getEnv("TX_READ_CONCERN", "snapshot"),
		TxWriteConcern: getEnv("TX_WRITE_CONCERN", "majority"),

		Commission:      commission,
		DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", "NGN")),

		RabbitURL:      os.Getenv("RABBITMQ_URL"),
		RabbitExchange: getEnv("RABBITMQ_EXCHANGE", "ledger"),
		OutboxInterval: getDuration("OUTBOX_POLL_INTERVAL", time.Second),

		GatewayBaseURL:   getEnv("GATEWAY_BASE_URL", "https://seerbitapi.com"),
		GatewayPublicKey: os.Getenv("GATEWAY_PUBLIC_KEY"),
		GatewayToken:     os.Getenv("GATEWAY_TOKEN"),
		GatewayCallback:  os.Getenv("GATEWAY_CALLBACK_URL"),
		GatewayPocketID:  os.Getenv("GATEWAY_POCKET_ID"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
	}
}

// MySQLDSN builds the go-sql-driver DSN
func (c *Config) MySQLDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&loc=UTC"
}

// TxOptions builds the options of every atomic context
func (c *Config) TxOptions() store.TxOptions {
	opts := store.DefaultTxOptions()
	switch strings.ToLower(c.TxIsolation) {
	case "read_committed":
		opts.Isolation = sql.LevelReadCommitted
	case "serializable":
		opts.Isolation = sql.LevelSerializable
	case "repeatable_read", "":
		opts.Isolation = sql.LevelRepeatableRead
	}
	if c.TxReadConcern != "" {
		opts.ReadConcern = c.TxReadConcern
	}
	if c.TxWriteConcern != "" {
		opts.WriteConcern = c.TxWriteConcern
	}
	return opts
}

// GatewayEnabled reports whether provider credentials are present
func (c *Config) GatewayEnabled() bool {
	return c.GatewayToken != "" && c.GatewayPublicKey != ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// getCommission parses a rate in (0, 1); anything else is logged and replaced
// by the house rate
func getCommission(key string) decimal.Decimal {
	raw := getEnv(key, escrow.DefaultCommission.String())
	rate, err := decimal.NewFromString(raw)
	if err != nil || !escrow.ValidCommission(rate) {
		logrus.WithField(key, raw).Warnf("Invalid commission, using %s", escrow.DefaultCommission)
		return escrow.DefaultCommission
	}
	return rate
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
