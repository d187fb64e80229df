package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	AppMode         string
	Port            string
	Database        DatabaseConfig
	JWT             JWTConfig
	RPC             RPCConfig
	Loan            LoanConfig
	SuperAdminEmail string
	SuperAdminPass  string
	OverdueCron     string
	LineNotifyToken string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// JWTConfig holds access token configuration
type JWTConfig struct {
	Secret          string
	AccessTokenMins int
}

// RPCConfig tunes the procedure gateway
type RPCConfig struct {
	Timeout          time.Duration
	MaxRetries       int
	BackoffBase      time.Duration
	SlowCall         time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// LoanConfig holds pricing and penalty parameters
type LoanConfig struct {
	DefaultRate      decimal.Decimal
	MaxRate          decimal.Decimal
	LateFeeDailyRate decimal.Decimal
	LateFeeGraceDays int
	LateFeeMaxRatio  decimal.Decimal
	LateFeeCap       decimal.Decimal
}

// Global config instance
var AppConfig *Config

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist in production)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Get APP_MODE (default to "dev") - trim spaces for Windows compatibility
	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	loan, err := loadLoanConfig()
	if err != nil {
		return nil, err
	}

	config := &Config{
		AppMode:         appMode,
		Port:            getEnv("PORT", "3000"),
		Database:        loadDatabaseConfig(appMode),
		JWT:             loadJWTConfig(appMode),
		RPC:             loadRPCConfig(),
		Loan:            loan,
		SuperAdminEmail: strings.ToLower(strings.TrimSpace(getEnv("SUPER_ADMIN_EMAIL", ""))),
		SuperAdminPass:  getEnv("SUPER_ADMIN_PASSWORD", ""),
		OverdueCron:     getEnv("OVERDUE_CRON", "0 1 * * *"),
		LineNotifyToken: getEnv("LINE_NOTIFY_TOKEN", ""),
	}

	if config.IsProd() && config.JWT.Secret == "default_secret" {
		return nil, fmt.Errorf("PROD_JWT_SECRET must be set in prod mode")
	}

	// Set global config
	AppConfig = config

	log.Printf("✅ Configuration loaded successfully [MODE: %s]", appMode)
	return config, nil
}

// loadDatabaseConfig loads database config based on mode
func loadDatabaseConfig(mode string) DatabaseConfig {
	prefix := "DEV_"
	if mode == "prod" {
		prefix = "PROD_"
	}

	return DatabaseConfig{
		Host:     getEnv(prefix+"DB_HOST", "localhost"),
		Port:     getEnv(prefix+"DB_PORT", "3306"),
		User:     getEnv(prefix+"DB_USER", "root"),
		Password: getEnv(prefix+"DB_PASS", ""),
		DBName:   getEnv(prefix+"DB_NAME", "namlend"),
	}
}

// loadJWTConfig loads JWT config based on mode
func loadJWTConfig(mode string) JWTConfig {
	prefix := "DEV_"
	if mode == "prod" {
		prefix = "PROD_"
	}

	return JWTConfig{
		Secret:          getEnv(prefix+"JWT_SECRET", "default_secret"),
		AccessTokenMins: getEnvInt("ACCESS_TOKEN_MINUTES", 60),
	}
}

func loadRPCConfig() RPCConfig {
	return RPCConfig{
		Timeout:          time.Duration(getEnvInt("RPC_TIMEOUT_MS", 3000)) * time.Millisecond,
		MaxRetries:       getEnvInt("RPC_MAX_RETRIES", 3),
		BackoffBase:      time.Duration(getEnvInt("RPC_BACKOFF_BASE_MS", 100)) * time.Millisecond,
		SlowCall:         time.Duration(getEnvInt("RPC_SLOW_CALL_MS", 1000)) * time.Millisecond,
		BreakerThreshold: getEnvInt("RPC_BREAKER_THRESHOLD", 3),
		BreakerCooldown:  time.Duration(getEnvInt("RPC_BREAKER_COOLDOWN_SEC", 30)) * time.Second,
	}
}

func loadLoanConfig() (LoanConfig, error) {
	var (
		cfg LoanConfig
		err error
	)
	decimals := []struct {
		key, def string
		dst      *decimal.Decimal
	}{
		{"LOAN_DEFAULT_RATE", "32", &cfg.DefaultRate},
		{"LOAN_MAX_RATE", "32", &cfg.MaxRate},
		{"LATE_FEE_DAILY_RATE", "0.001", &cfg.LateFeeDailyRate},
		{"LATE_FEE_MAX_RATIO", "0.25", &cfg.LateFeeMaxRatio},
		{"LATE_FEE_CAP", "1000.00", &cfg.LateFeeCap},
	}
	for _, d := range decimals {
		if *d.dst, err = decimal.NewFromString(getEnv(d.key, d.def)); err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}
	if cfg.DefaultRate.GreaterThan(cfg.MaxRate) {
		return cfg, fmt.Errorf("LOAN_DEFAULT_RATE %s exceeds LOAN_MAX_RATE %s", cfg.DefaultRate, cfg.MaxRate)
	}
	cfg.LateFeeGraceDays = getEnvInt("LATE_FEE_GRACE_DAYS", 0)
	return cfg, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt is getEnv for integers; unparsable values fall back to the default
func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(strings.TrimSpace(getEnv(key, strconv.Itoa(defaultValue))))
	if err != nil {
		return defaultValue
	}
	return n
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" {
		if c.IsDev() {
			return "*"
		}
		return "https://app.namlend.com"
	}
	return origins
}
