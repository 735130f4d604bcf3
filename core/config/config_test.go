package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	req := require.New(t)
	cfg := validConfig()

	req.NoError(Normalize(cfg))
	req.Equal(RunModeLongpoll, cfg.Telegram.RunMode)
	req.Equal("Users", cfg.Bot.UsersCollection)
	req.Equal("Logs", cfg.Bot.LogsCollection)
	req.Equal("Locales", cfg.Bot.LocalesFolder)
	req.Equal(DefaultFreeState, cfg.Bot.FreeState)
	req.Equal(DefaultRole, cfg.Bot.DefaultRole)
}

func TestNormalizeRequiresToken(t *testing.T) {
	req := require.New(t)
	cfg := &Config{}
	req.Error(Normalize(cfg))
}

func TestNormalizeRunModeAlias(t *testing.T) {
	req := require.New(t)
	cfg := validConfig()
	cfg.Telegram.RunMode = "polling"

	req.NoError(Normalize(cfg))
	req.Equal(RunModeLongpoll, cfg.Telegram.RunMode)
}

func TestNormalizeWebhookRequiresEndpoint(t *testing.T) {
	req := require.New(t)
	cfg := validConfig()
	cfg.Telegram.RunMode = RunModeWebhook

	req.Error(Normalize(cfg))

	cfg.Webhook = WebhookConfig{URL: "https://bot.example.com", Listen: "0.0.0.0", Port: 8443}
	req.NoError(Normalize(cfg))
}

func TestNormalizeInjectsDefaultRole(t *testing.T) {
	req := require.New(t)
	cfg := validConfig()
	cfg.Bot.Roles = map[string]RoleConfig{"admin": {Password: "secret"}}

	req.NoError(Normalize(cfg))
	req.Contains(cfg.Bot.Roles, "admin")
	req.Contains(cfg.Bot.Roles, DefaultRole)
	req.Empty(cfg.Bot.Roles[DefaultRole].Password)
}

func TestNormalizeAppendsFreeState(t *testing.T) {
	req := require.New(t)
	cfg := validConfig()
	cfg.Bot.States = []string{"ordering", "paying"}

	req.NoError(Normalize(cfg))
	req.Contains(cfg.Bot.States, "free")

	// Already listed free state is not duplicated.
	cfg2 := validConfig()
	cfg2.Bot.States = []string{"ordering", "free"}
	req.NoError(Normalize(cfg2))
	req.Len(cfg2.Bot.States, 2)
}

func TestNormalizeRejectsEmptyState(t *testing.T) {
	req := require.New(t)
	cfg := validConfig()
	cfg.Bot.States = []string{"ordering", ""}
	req.Error(Normalize(cfg))
}

func TestNormalizeRateLimitExclusions(t *testing.T) {
	req := require.New(t)
	cfg := validConfig()
	cfg.RateLimit.ExcludeUpdates = []string{"Callback", " message "}

	req.NoError(Normalize(cfg))
	req.Equal([]string{"callback", "message"}, cfg.RateLimit.ExcludeUpdates)

	cfg.RateLimit.ExcludeUpdates = []string{"bogus"}
	req.Error(Normalize(cfg))
}
