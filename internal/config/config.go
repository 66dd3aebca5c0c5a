package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"hdnotes-server/pkg/otp"

	"github.com/joho/godotenv"
)

const (
	DriverCouchDB = "couchdb"
	DriverMongoDB = "mongodb"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	OTP       OTPConfig
	Mail      MailConfig
	Google    GoogleConfig
	WebSocket WebSocketConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MongoURI string
	Timeout  time.Duration
}

func (d DatabaseConfig) CouchURL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", d.User, d.Password, d.Host, d.Port)
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type OTPConfig struct {
	Length     int
	Expiration time.Duration
}

type MailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
	Timeout      time.Duration
}

// Enabled reports whether real delivery is configured.
func (m MailConfig) Enabled() bool {
	return m.SMTPHost != ""
}

type GoogleConfig struct {
	ClientID string
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnPerUser  int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	Enabled           bool
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string
	Format string
}

const devJWTSecret = "dev-secret-change-in-production"

func Load() (*Config, error) {
	godotenv.Load()

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return d
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", DriverCouchDB)),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "hdnotes"),
			MongoURI: getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Timeout:  duration("DB_TIMEOUT", "5s"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			Expiration: duration("JWT_EXPIRATION", "24h"),
		},
		OTP: OTPConfig{
			Length:     getEnvAsInt("OTP_LENGTH", 6),
			Expiration: duration("OTP_EXPIRATION", "5m"),
		},
		Mail: MailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("MAIL_FROM", "HD Notes <noreply@hdnotes.local>"),
			Timeout:      duration("MAIL_TIMEOUT", "10s"),
		},
		Google: GoogleConfig{
			ClientID: getEnv("GOOGLE_CLIENT_ID", ""),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 4096)),
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
			MaxConnPerUser:  getEnvAsInt("WS_MAX_CONN_PER_USER", 5),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 30),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 5),
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("FRONTEND_URL", getEnv("CORS_ALLOWED_ORIGINS", "*")),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if cfg.Database.Driver != DriverCouchDB && cfg.Database.Driver != DriverMongoDB {
		errs = append(errs, fmt.Errorf("invalid DB_DRIVER %q: want %s or %s", cfg.Database.Driver, DriverCouchDB, DriverMongoDB))
	}

	if cfg.OTP.Length < 1 || cfg.OTP.Length > otp.MaxLength {
		errs = append(errs, fmt.Errorf("invalid OTP_LENGTH %d: want 1 to %d", cfg.OTP.Length, otp.MaxLength))
	}

	// Without SMTP, codes go to the log.
	if cfg.Server.IsProduction() && !cfg.Mail.Enabled() {
		errs = append(errs, errors.New("SMTP_HOST is required in production"))
	}

	if cfg.JWT.Secret == "" {
		if cfg.Server.IsProduction() {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		cfg.JWT.Secret = devJWTSecret
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
