package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	Port        string
	DatabaseURL string

	// Optional variables with defaults
	GoEnv         string
	LogLevel      string
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	DevStore      string // "postgres" (default) or "memory"

	// Auth
	Auth0Domain     string
	Auth0Audience   string
	SkipAuth        bool
	DevelopmentMode bool
	AllowedOrigins  string

	// Song assets
	SongDataDir string
	ETagBits    int

	// Tracing
	OTelCollectorAddr      string
	OTelSampleRatio        float64
	OTelInsecureSkipVerify bool

	// WebSocket endpoint
	WebSocketPort                    string
	RequestIDHeader                  string
	WSSendQueueMax                   int
	WSCoalesceWindowMS               int
	WSDropPolicy                     string
	WSAutoFragmentSize               int
	WSMaxMessageBytes                int64
	WSYieldThresholdBytes            int
	WSSlowClientDisconnectAfterDrops int
	WSCoalesceTypes                  []string
	WSBatchFlushMS                   int
	WSPingIntervalS                  int
	WSPongWaitS                      int

	// Rate Limits
	RateLimitApiGlobal string
	RateLimitApiPublic string
	RateLimitApiRooms  string
	RateLimitApiSongs  string
	RateLimitWsIp      string
	RateLimitWsUser    string
}

// ValidateEnv validates all required environment variables and returns a Config object
// Returns an error if any required variable is missing or invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errors = append(errors, "PORT is required")
	} else if !isValidPort(cfg.Port) {
		errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Optional: DEV_STORE (defaults to "postgres"; "memory" skips DATABASE_URL)
	cfg.DevStore = getEnvOrDefault("DEV_STORE", "postgres")
	if cfg.DevStore != "postgres" && cfg.DevStore != "memory" {
		errors = append(errors, fmt.Sprintf("DEV_STORE must be 'postgres' or 'memory' (got '%s')", cfg.DevStore))
	}

	// Conditional: DATABASE_URL (required unless the in-memory store is selected)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.DevStore == "postgres" {
		errors = append(errors, "DATABASE_URL is required (or set DEV_STORE=memory)")
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			// Default to localhost:6379 if not specified
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errors = append(errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Auth (validated in main: domain+audience must be set unless SKIP_AUTH)
	cfg.Auth0Domain = os.Getenv("AUTH0_DOMAIN")
	cfg.Auth0Audience = os.Getenv("AUTH0_AUDIENCE")
	cfg.SkipAuth = os.Getenv("SKIP_AUTH") == "true"
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Song assets
	cfg.SongDataDir = getEnvOrDefault("SONG_DATA_DIR", "./song_data")
	cfg.ETagBits = getEnvInt("ETAG_BITS", 128, &errors)
	switch cfg.ETagBits {
	case 64, 128, 256:
	default:
		errors = append(errors, fmt.Sprintf("ETAG_BITS must be one of 64, 128, 256 (got %d)", cfg.ETagBits))
	}

	// Tracing (optional; empty disables the exporter)
	cfg.OTelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
	cfg.OTelSampleRatio = getEnvFloat("OTEL_SAMPLE_RATIO", 1.0, &errors)
	if cfg.OTelSampleRatio < 0 || cfg.OTelSampleRatio > 1 {
		errors = append(errors, fmt.Sprintf("OTEL_SAMPLE_RATIO must be between 0 and 1 (got %g)", cfg.OTelSampleRatio))
	}
	cfg.OTelInsecureSkipVerify = os.Getenv("OTEL_INSECURE_SKIP_VERIFY") == "true"

	// WebSocket endpoint
	cfg.WebSocketPort = getEnvOrDefault("WEBSOCKET_PORT", "8766")
	if !isValidPort(cfg.WebSocketPort) {
		errors = append(errors, fmt.Sprintf("WEBSOCKET_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.WebSocketPort))
	}
	cfg.RequestIDHeader = getEnvOrDefault("REQUEST_ID_HEADER", "X-Request-ID")
	cfg.WSSendQueueMax = getEnvInt("WS_SEND_QUEUE_MAX", 100, &errors)
	if cfg.WSSendQueueMax < 1 {
		errors = append(errors, fmt.Sprintf("WS_SEND_QUEUE_MAX must be positive (got %d)", cfg.WSSendQueueMax))
	}
	cfg.WSCoalesceWindowMS = getEnvInt("WS_COALESCE_WINDOW_MS", 50, &errors)
	if cfg.WSCoalesceWindowMS < 0 {
		errors = append(errors, fmt.Sprintf("WS_COALESCE_WINDOW_MS must not be negative (got %d)", cfg.WSCoalesceWindowMS))
	}
	cfg.WSDropPolicy = getEnvOrDefault("WS_DROP_POLICY", "oldest")
	switch cfg.WSDropPolicy {
	case "oldest", "newest", "random":
	default:
		errors = append(errors, fmt.Sprintf("WS_DROP_POLICY must be 'oldest', 'newest' or 'random' (got '%s')", cfg.WSDropPolicy))
	}
	cfg.WSAutoFragmentSize = getEnvInt("WS_AUTO_FRAGMENT_SIZE", 65536, &errors)
	cfg.WSMaxMessageBytes = int64(getEnvInt("WS_MAX_MESSAGE_BYTES", 1048576, &errors))
	cfg.WSYieldThresholdBytes = getEnvInt("WS_YIELD_THRESHOLD_BYTES", 262144, &errors)
	cfg.WSSlowClientDisconnectAfterDrops = getEnvInt("WS_SLOW_CLIENT_DISCONNECT_AFTER_DROPS", 0, &errors)
	cfg.WSBatchFlushMS = getEnvInt("WS_BATCH_FLUSH_MS", 200, &errors)
	cfg.WSPingIntervalS = getEnvInt("WS_PING_INTERVAL_S", 0, &errors)
	cfg.WSPongWaitS = getEnvInt("WS_PONG_WAIT_S", 60, &errors)

	// Outgoing fragments must fit inside the inbound frame cap or peers that
	// mirror our limits will reject our frames.
	if int64(cfg.WSAutoFragmentSize) > cfg.WSMaxMessageBytes {
		errors = append(errors, fmt.Sprintf(
			"WS_AUTO_FRAGMENT_SIZE (%d) must not exceed WS_MAX_MESSAGE_BYTES (%d)",
			cfg.WSAutoFragmentSize, cfg.WSMaxMessageBytes))
	}

	cfg.WSCoalesceTypes = splitNonEmpty(getEnvOrDefault("WS_COALESCE_TYPES", "page_updated,song_updated"))

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitApiGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitApiPublic = getEnvOrDefault("RATE_LIMIT_API_PUBLIC", "100-M")
	cfg.RateLimitApiRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitApiSongs = getEnvOrDefault("RATE_LIMIT_API_SONGS", "500-M")
	cfg.RateLimitWsIp = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitWsUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "10-M")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidPort checks if a string parses to a port number.
func isValidPort(s string) bool {
	port, err := strconv.Atoi(s)
	return err == nil && port >= 1 && port <= 65535
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	if !isValidPort(parts[1]) {
		return false
	}

	// Validate host is not empty
	if parts[0] == "" {
		return false
	}

	return true
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"port", cfg.Port,
		"websocket_port", cfg.WebSocketPort,
		"database_url", redactSecret(cfg.DatabaseURL),
		"dev_store", cfg.DevStore,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"song_data_dir", cfg.SongDataDir,
		"etag_bits", cfg.ETagBits,
		"ws_send_queue_max", cfg.WSSendQueueMax,
		"ws_coalesce_window_ms", cfg.WSCoalesceWindowMS,
		"ws_drop_policy", cfg.WSDropPolicy,
		"rate_limit_api_global", cfg.RateLimitApiGlobal,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt parses an integer environment variable, appending to errs on bad input.
func getEnvInt(key string, defaultValue int, errs *[]string) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be an integer (got '%s')", key, value))
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64, errs *[]string) float64 {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be a number (got '%s')", key, value))
		return defaultValue
	}
	return f
}

// splitNonEmpty splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
