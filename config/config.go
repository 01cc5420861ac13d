package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Firebase  FirebaseConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Port           string
	Mode           string
	LogMode        string
	AllowedOrigins []string
	ShutdownWait   time.Duration
}

type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	SSLMode  string
}

// RedisConfig is optional. An empty Host disables the Redis backed rate
// limiter.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret    string
	ExpiryMin int
}

// FirebaseConfig is optional. Push dispatch is a no-op when neither
// credentials source is set.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
}

type KafkaConfig struct {
	Brokers      []string
	MessageTopic string
}

type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
	Insecure     bool
	SampleRatio  float64
}

type RateLimitConfig struct {
	MessagesPerMinute int
	ConnectsPerMinute int
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		App: AppConfig{
			Port:           getEnv("APP_PORT", "8080"),
			Mode:           getEnv("APP_MODE", "debug"),
			LogMode:        getEnv("LOG_MODE", "development"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			ShutdownWait:   time.Duration(getEnvAsInt("SHUTDOWN_WAIT_SEC", 5)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "marketplace"),
			Port:     getEnv("DB_PORT", "5432"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", "change-me"),
			ExpiryMin: getEnvAsInt("JWT_EXPIRY_MIN", 60),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			CredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvAsList("KAFKA_BROKERS", nil),
			MessageTopic: getEnv("KAFKA_MESSAGE_TOPIC", "chat.message.created"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "marketplace-chat"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:     getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio:  getEnvAsFloat("OTEL_SAMPLER_RATIO", 0.1),
		},
		RateLimit: RateLimitConfig{
			MessagesPerMinute: getEnvAsInt("RATE_LIMIT_MESSAGES_PER_MIN", 60),
			ConnectsPerMinute: getEnvAsInt("RATE_LIMIT_CONNECTS_PER_MIN", 10),
		},
	}
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

func (c FirebaseConfig) Enabled() bool {
	return c.CredentialsFile != "" || c.CredentialsJSON != ""
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

func (c TelemetryConfig) Enabled() bool {
	return c.OTLPEndpoint != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
