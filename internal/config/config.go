package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone    = "UTC"
	configPathEnv      = "CHANNELPILOT_CONFIG"
	databasePathEnv    = "DATABASE_PATH"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	classifierKeyEnv   = "CLASSIFIER_API_KEY"
	classifierModelEnv = "CLASSIFIER_MODEL"
	discoverySeedEnv   = "DISCOVERY_SEED_FILE"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Quota         QuotaConfig        `yaml:"quota"`
	Evaluation    EvaluationConfig   `yaml:"evaluation"`
	Accounts      []AccountConfig    `yaml:"accounts"`
	Discovery     DiscoveryConfig    `yaml:"discovery"`
	Notifications NotificationConfig `yaml:"notifications"`
	Classifier    ClassifierConfig   `yaml:"classifier"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig defines when harvest cycles run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// QuotaConfig bounds per-account daily channel acquisition.
type QuotaConfig struct {
	DailyLimit int `yaml:"dailyLimit"`
}

// EvaluationConfig tunes the signal verdict thresholds.
type EvaluationConfig struct {
	SampleSize         int     `yaml:"sampleSize"`
	MinJobMessages     int     `yaml:"minJobMessages"`
	HitWeight          float64 `yaml:"hitWeight"`
	DecayFactor        float64 `yaml:"decayFactor"`
	HighValueThreshold float64 `yaml:"highValueThreshold"`
}

// AccountConfig declares a worker identity; accounts are created at
// configuration time.
type AccountConfig struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"displayName"`
	Status      string `yaml:"status"`
}

// DiscoveryConfig locates the channel seed file.
type DiscoveryConfig struct {
	SeedFile string `yaml:"seedFile"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send digests.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// ClassifierConfig selects the message classifier strategy. "keyword" is the
// deterministic default; "llm" routes messages to an OpenAI-compatible API.
type ClassifierConfig struct {
	Strategy     string `yaml:"strategy"`
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// LoggingConfig controls slog verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(classifierKeyEnv); v != "" {
		c.Classifier.APIKey = v
	}

	if v := os.Getenv(classifierModelEnv); v != "" {
		c.Classifier.Model = v
	}

	if v := os.Getenv(discoverySeedEnv); v != "" {
		c.Discovery.SeedFile = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Quota.DailyLimit > 0 {
		base.Quota = override.Quota
	}

	if override.Evaluation.SampleSize > 0 {
		base.Evaluation.SampleSize = override.Evaluation.SampleSize
	}
	if override.Evaluation.MinJobMessages > 0 {
		base.Evaluation.MinJobMessages = override.Evaluation.MinJobMessages
	}
	if override.Evaluation.HitWeight > 0 {
		base.Evaluation.HitWeight = override.Evaluation.HitWeight
	}
	if override.Evaluation.DecayFactor > 0 {
		base.Evaluation.DecayFactor = override.Evaluation.DecayFactor
	}
	if override.Evaluation.HighValueThreshold > 0 {
		base.Evaluation.HighValueThreshold = override.Evaluation.HighValueThreshold
	}

	if len(override.Accounts) > 0 {
		base.Accounts = override.Accounts
	}

	if override.Discovery.SeedFile != "" {
		base.Discovery = override.Discovery
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Classifier.Strategy != "" {
		base.Classifier.Strategy = override.Classifier.Strategy
	}
	if override.Classifier.Endpoint != "" {
		base.Classifier.Endpoint = override.Classifier.Endpoint
	}
	if override.Classifier.Model != "" {
		base.Classifier.Model = override.Classifier.Model
	}
	if override.Classifier.APIKey != "" {
		base.Classifier.APIKey = override.Classifier.APIKey
	}
	if override.Classifier.SystemPrompt != "" {
		base.Classifier.SystemPrompt = override.Classifier.SystemPrompt
	}

	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database:  DatabaseConfig{Path: "channelpilot.db"},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		Quota:     QuotaConfig{DailyLimit: 10},
		Evaluation: EvaluationConfig{
			SampleSize:         100,
			MinJobMessages:     10,
			HitWeight:          5.0,
			DecayFactor:        1.0,
			HighValueThreshold: 7.0,
		},
		Discovery: DiscoveryConfig{SeedFile: "universal_groups.json"},
		Classifier: ClassifierConfig{
			Strategy:     "keyword",
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You classify chat messages as job postings.",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
