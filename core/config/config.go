package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// RoleConfig describes a single role from the static role mapping.
type RoleConfig struct {
	Password string `yaml:"password"`
}

// BotConfig aggregates the utility-library settings: role mapping, state
// list, storage collection names, and the locale folder.
type BotConfig struct {
	Roles           map[string]RoleConfig `yaml:"roles"`
	States          []string              `yaml:"states"`
	StateWithParams bool                  `yaml:"state_with_params" envconfig:"BOT_STATE_WITH_PARAMS"`
	FreeState       string                `yaml:"free_state" envconfig:"BOT_FREE_STATE"`
	DefaultRole     string                `yaml:"default_role" envconfig:"BOT_DEFAULT_ROLE"`
	UsersCollection string                `yaml:"users_collection" envconfig:"BOT_USERS_COLLECTION"`
	LogsCollection  string                `yaml:"logs_collection" envconfig:"BOT_LOGS_COLLECTION"`
	LocalesFolder   string                `yaml:"locales_folder" envconfig:"BOT_LOCALES_FOLDER"`
	DefaultLocale   string                `yaml:"default_locale" envconfig:"BOT_DEFAULT_LOCALE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// DefaultRole is granted to every initialized user.
	DefaultRole = "user"
	// DefaultFreeState marks a user with no active conversation.
	DefaultFreeState = "free"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
// Storage connection settings live with the backend packages; see
// core/bootstrap for the wiring.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Bot       BotConfig       `yaml:"bot"`
}

// Load reads configuration from a YAML file, an optional .env file, and
// environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	return normalizeBot(&cfg.Bot)
}

func normalizeBot(bot *BotConfig) error {
	if bot.UsersCollection == "" {
		bot.UsersCollection = "Users"
	}
	if bot.LogsCollection == "" {
		bot.LogsCollection = "Logs"
	}
	if bot.LocalesFolder == "" {
		bot.LocalesFolder = "Locales"
	}
	if bot.FreeState == "" {
		bot.FreeState = DefaultFreeState
	}
	if bot.DefaultRole == "" {
		bot.DefaultRole = DefaultRole
	}

	// The default role may be omitted from the mapping; it then carries an
	// empty password.
	if bot.Roles == nil {
		bot.Roles = make(map[string]RoleConfig)
	}
	if _, ok := bot.Roles[bot.DefaultRole]; !ok {
		bot.Roles[bot.DefaultRole] = RoleConfig{}
	}

	// Same for the free state and the state list.
	hasFree := false
	for _, st := range bot.States {
		if st == "" {
			return fmt.Errorf("bot.states must not contain empty entries")
		}
		if st == bot.FreeState {
			hasFree = true
		}
	}
	if !hasFree {
		bot.States = append(bot.States, bot.FreeState)
	}
	return nil
}
