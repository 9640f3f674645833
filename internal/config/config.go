package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

func init() {
	// godotenv.Load never overrides variables that are already set.
	_ = godotenv.Load(".env")
}

const (
	defaultPort                = "4200"
	defaultEnvironment         = "development"
	defaultAppURL              = "http://localhost:3000"
	defaultPlannerBaseURL      = "https://openrouter.ai/api/v1"
	defaultPlannerModel        = "gpt-4"
	defaultPlannerTemperature  = 0.7
	defaultInvoiceNumberPrefix = "DP"
	defaultLogLevel            = "info"
	defaultLogFormat           = "console"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	APIBaseURL    string
}

type PlannerConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

type LogConfig struct {
	Level  string
	Format string
}

type Config struct {
	Port                string
	DatabaseURL         string
	Environment         string
	AppURL              string
	JWTSecret           string
	AutoMigrate         bool
	InvoiceNumberPrefix string
	CORSAllowedOrigins  []string
	Stripe              StripeConfig
	Planner             PlannerConfig
	Log                 LogConfig
}

func Load() (Config, error) {
	cfg := Config{
		Port:        firstNonEmpty(strings.TrimSpace(os.Getenv("PORT")), defaultPort),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Environment: resolveEnvironment(),
		AppURL: strings.TrimRight(firstNonEmpty(
			strings.TrimSpace(os.Getenv("APP_URL")),
			strings.TrimSpace(os.Getenv("NEXT_PUBLIC_APP_URL")),
			defaultAppURL,
		), "/"),
		JWTSecret: firstNonEmpty(
			strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")),
			strings.TrimSpace(os.Getenv("SUPABASE_JWT_SECRET")),
		),
		InvoiceNumberPrefix: strings.ToUpper(firstNonEmpty(
			strings.TrimSpace(os.Getenv("INVOICE_NUMBER_PREFIX")),
			defaultInvoiceNumberPrefix,
		)),
		CORSAllowedOrigins: parseList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
			WebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
			APIBaseURL:    strings.TrimSpace(os.Getenv("STRIPE_API_BASE_URL")),
		},
		Planner: PlannerConfig{
			APIKey:  strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
			BaseURL: firstNonEmpty(strings.TrimSpace(os.Getenv("OPENROUTER_BASE_URL")), defaultPlannerBaseURL),
			Model:   firstNonEmpty(strings.TrimSpace(os.Getenv("PLANNER_MODEL")), defaultPlannerModel),
		},
		Log: LogConfig{
			Level:  strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), defaultLogLevel)),
			Format: strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_FORMAT")), defaultLogFormat)),
		},
	}

	autoMigrate, err := parseBool("AUTO_MIGRATE", true)
	if err != nil {
		return Config{}, err
	}
	cfg.AutoMigrate = autoMigrate

	temperature, err := parseFloat("PLANNER_TEMPERATURE", defaultPlannerTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.Planner.Temperature = temperature

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Planner.Temperature < 0 || c.Planner.Temperature > 2 {
		return fmt.Errorf("PLANNER_TEMPERATURE must be in [0,2]")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json")
	}

	if len(c.InvoiceNumberPrefix) == 0 || strings.ContainsAny(c.InvoiceNumberPrefix, " -") {
		return fmt.Errorf("INVOICE_NUMBER_PREFIX must be a non-empty token without spaces or dashes")
	}

	if !isNonDevelopment(c.Environment) {
		return nil
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required in non-development environments")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in non-development environments")
	}

	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required in non-development environments")
	}

	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in non-development environments")
	}

	return nil
}

// IsDevelopment reports whether the service runs in a local or test environment.
func (c Config) IsDevelopment() bool {
	return !isNonDevelopment(c.Environment)
}

func resolveEnvironment() string {
	return strings.ToLower(firstNonEmpty(
		strings.TrimSpace(os.Getenv("APP_ENV")),
		strings.TrimSpace(os.Getenv("ENVIRONMENT")),
		strings.TrimSpace(os.Getenv("GO_ENV")),
		defaultEnvironment,
	))
}

func isNonDevelopment(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "dev", "development", "local", "test":
		return false
	default:
		return true
	}
}

func parseBool(name string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s must be a boolean value", name)
	}
}

func parseFloat(name string, defaultValue float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid float: %w", name, err)
	}

	return parsed, nil
}

func parseList(name string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue
	}
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
