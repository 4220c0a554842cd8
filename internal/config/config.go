package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig
	WhatsApp WhatsAppConfig
	Sheets   SheetsConfig
	Breeding BreedingConfig
	Notify   NotifyConfig
	MongoDB  MongoDBConfig
	Redis    RedisConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	BaseURL       string
	APIVersion    string
	// DefaultRecipient receives reminders of farms without their own recipient.
	DefaultRecipient string
	Timeout          time.Duration
}

// SheetsConfig configures the optional Google Sheets breeding ledger.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the ledger should be wired.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// BreedingConfig holds engine and scheduler settings.
type BreedingConfig struct {
	DefaultTimezone string
	CronSchedule    string
	DispatchLease   time.Duration
	// DefaultFarmID is used for operator commands from unknown senders.
	DefaultFarmID string
}

// NotifyConfig caps outbound reminder volume.
type NotifyConfig struct {
	DailyCap int
}

// MongoDBConfig holds settings for MongoDB. An empty URI selects the in-memory store.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// RedisConfig holds the connection used for notification quotas. An empty
// address disables the quota.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LogConfig selects the logger level.
type LogConfig struct {
	Level string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func fromEnv() (*Config, error) {
	whatsappTimeout, err := durationEnv("WHATSAPP_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	lease, err := durationEnv("DISPATCH_LEASE", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	dailyCap, err := intEnv("NOTIFY_DAILY_CAP", 200)
	if err != nil {
		return nil, err
	}
	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:      os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID:    os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:      os.Getenv("META_VERIFY_TOKEN"),
			BaseURL:          getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:       getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			DefaultRecipient: os.Getenv("WHATSAPP_DEFAULT_RECIPIENT"),
			Timeout:          whatsappTimeout,
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_LEDGER_ID"),
		},
		Breeding: BreedingConfig{
			DefaultTimezone: getenvWithDefault("TIMEZONE", "Africa/Conakry"),
			CronSchedule:    getenvWithDefault("REMINDER_CRON_SCHEDULE", "0 * * * *"),
			DispatchLease:   lease,
			DefaultFarmID:   os.Getenv("DEFAULT_FARM_ID"),
		},
		Notify: NotifyConfig{
			DailyCap: dailyCap,
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "rabbitry"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
	}, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.WhatsApp.AccessToken == "":
		return errors.New("WHATSAPP_TOKEN must be provided")
	case c.WhatsApp.PhoneNumberID == "":
		return errors.New("WHATSAPP_PHONE_NUMBER_ID must be provided")
	case c.WhatsApp.VerifyToken == "":
		return errors.New("META_VERIFY_TOKEN must be provided")
	}

	if c.WhatsApp.BaseURL == "" {
		return errors.New("WHATSAPP_BASE_URL must not be empty")
	}

	if c.WhatsApp.APIVersion == "" {
		return errors.New("WHATSAPP_API_VERSION must not be empty")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_LEDGER_ID must be provided together")
	}

	if c.Breeding.CronSchedule == "" {
		return errors.New("REMINDER_CRON_SCHEDULE must be provided")
	}

	if _, err := time.LoadLocation(c.Breeding.DefaultTimezone); err != nil || c.Breeding.DefaultTimezone == "" {
		return fmt.Errorf("TIMEZONE must be a valid IANA zone, got %q", c.Breeding.DefaultTimezone)
	}

	if c.Breeding.DispatchLease <= 0 {
		return errors.New("DISPATCH_LEASE must be positive")
	}

	if c.Notify.DailyCap < 0 {
		return errors.New("NOTIFY_DAILY_CAP must not be negative")
	}

	if c.MongoDB.URI != "" && c.MongoDB.DBName == "" {
		return errors.New("MONGODB_DB_NAME must be provided with MONGODB_URI")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
