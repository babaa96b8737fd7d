package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderStub   = "stub"

	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the analyzer service
type Config struct {
	// Server configuration
	Port           string
	MaxUploadBytes int64
	UploadDir      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	// Database configuration
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Thinking tier configuration
	LLMProvider       string
	GeminiAPIKey      string
	GeminiModel       string
	OpenAIAPIKey      string
	OpenAIModel       string
	LLMTimeout        time.Duration
	FrameMaxDimension int

	// Vision tier configuration
	ClassifierURL    string
	PersonCounterURL string
	VisionTimeout    time.Duration
	ProxyTablePath   string

	// Video configuration
	FFmpegPath      string
	FFprobePath     string
	VideoSampleRate int

	// Audit log configuration
	GuestEmail string
	GuestName  string
	LogsLimit  int

	// RabbitMQ configuration, publishing is disabled when the host is empty
	RabbitMQHost       string
	RabbitMQPort       string
	RabbitMQUser       string
	RabbitMQPassword   string
	RabbitMQExchange   string
	RabbitMQRoutingKey string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	driver := strings.ToLower(getEnv("DB_DRIVER", DriverMySQL))
	defaultDBPort := "3306"
	if driver == DriverPostgres {
		defaultDBPort = "5432"
	}

	config := &Config{
		// Server defaults
		Port:           getEnv("PORT", "7001"),
		MaxUploadBytes: getInt64Env("MAX_UPLOAD_BYTES", 100<<20),
		UploadDir:      getEnv("UPLOAD_DIR", os.TempDir()),
		CORSOrigins:    getStringSliceEnv("CORS_ORIGINS", "http://localhost:5173"),
		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 2),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 10),

		// Database defaults
		DBDriver:   driver,
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", defaultDBPort),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "threatsense"),

		// Thinking tier defaults
		LLMProvider:       strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", "")),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o"),
		LLMTimeout:        getDurationEnv("LLM_TIMEOUT", 60*time.Second),
		FrameMaxDimension: getIntEnv("FRAME_MAX_DIMENSION", 1024),

		// Vision tier defaults
		ClassifierURL:    getEnv("CLASSIFIER_URL", "http://localhost:8501"),
		PersonCounterURL: getEnv("PERSON_COUNTER_URL", "http://localhost:8502"),
		VisionTimeout:    getDurationEnv("VISION_TIMEOUT", 15*time.Second),
		ProxyTablePath:   getEnv("PROXY_TABLE_PATH", ""),

		// Video defaults
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:     getEnv("FFPROBE_PATH", "ffprobe"),
		VideoSampleRate: getIntEnv("VIDEO_SAMPLE_RATE", 30),

		// Audit log defaults
		GuestEmail: getEnv("GUEST_EMAIL", "guest@threatsense.ai"),
		GuestName:  getEnv("GUEST_NAME", "Guest User"),
		LogsLimit:  getIntEnv("LOGS_LIMIT", 50),

		// RabbitMQ defaults
		RabbitMQHost:       getEnv("RABBITMQ_HOST", ""),
		RabbitMQPort:       getEnv("RABBITMQ_PORT", "5672"),
		RabbitMQUser:       getEnv("RABBITMQ_USER", "guest"),
		RabbitMQPassword:   getEnv("RABBITMQ_PASSWORD", "guest"),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", "threatsense"),
		RabbitMQRoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "analysis.completed"),

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config
}

// Validate rejects values the service cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch c.LLMProvider {
	case ProviderGemini, ProviderOpenAI, ProviderStub:
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	if c.VideoSampleRate < 1 {
		errs = append(errs, fmt.Errorf("VIDEO_SAMPLE_RATE must be at least 1, got %d", c.VideoSampleRate))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative"))
	}
	if c.LogsLimit < 1 {
		errs = append(errs, fmt.Errorf("LOGS_LIMIT must be at least 1, got %d", c.LogsLimit))
	}

	return errors.Join(errs...)
}

// LLMAPIKey returns the key of the selected provider, empty when the thinking tier is unconfigured
func (c *Config) LLMAPIKey() string {
	switch c.LLMProvider {
	case ProviderGemini:
		return c.GeminiAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	}
	return ""
}

// DSN returns the data source name for the configured driver
func (c *Config) DSN() string {
	if c.DBDriver == DriverPostgres {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// PublishingEnabled reports whether verdict events should be sent to RabbitMQ
func (c *Config) PublishingEnabled() bool {
	return c.RabbitMQHost != ""
}

// GetRabbitMQURL constructs the AMQP URL from individual components
func (c *Config) GetRabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s", c.RabbitMQUser, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort)
}

// getStringSliceEnv gets a comma-separated string environment variable and returns it as a string slice
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
