// Package telegram composes the bot: transport (telebot), the update
// router, the outbound sender, and the shared middlewares.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"botkit/core/botlog"
	coreconfig "botkit/core/config"
	"botkit/core/locales"
	"botkit/core/logger"
	"botkit/core/roles"
	"botkit/core/state"
	"botkit/core/storage"
	"botkit/core/telegram/middleware"
	"botkit/core/telegram/router"
	tgsender "botkit/core/telegram/sender"
	"botkit/core/usermeta"

	tele "gopkg.in/telebot.v4"
	"log/slog"
)

// Components are the domain services the bot wires together.
type Components struct {
	Store    storage.Store
	Roles    *roles.Auth
	State    *state.Manager
	Meta     *usermeta.Store
	Locales  *locales.Manager
	EventLog *botlog.Logger
}

// Options configure New.
type Options struct {
	Config     *coreconfig.Config
	Components Components

	DispatcherOptions tgsender.DispatcherOptions

	// DisableWebhookCleanup skips deleting a stale webhook before polling.
	DisableWebhookCleanup bool
}

// Bot is a running Telegram bot assembled from the core components.
type Bot struct {
	cfg   *coreconfig.Config
	comps Components

	bot        *tele.Bot
	dispatcher *tgsender.Dispatcher
	sender     *tgsender.Sender
	router     *router.Router

	webhookCleanup bool
}

// New builds the bot and its transport. Routes are registered through
// Router() before Start.
func New(opts Options) (*Bot, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("telegram: nil config provided")
	}
	comps := opts.Components
	if comps.Store == nil {
		return nil, fmt.Errorf("telegram: nil store provided")
	}
	if comps.Roles == nil || comps.State == nil || comps.Meta == nil {
		return nil, fmt.Errorf("telegram: role, state, and usermeta components are required")
	}

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: BuildHTTPClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	buildTook := time.Since(buildStart)

	logPollerMode(poller, cfg, buildTook)

	dispatcher := tgsender.NewDispatcher(opts.DispatcherOptions)

	var recorder tgsender.Recorder
	if comps.EventLog != nil {
		recorder = comps.EventLog
	}
	snd := tgsender.New(bot, dispatcher, recorder)

	var routeRecorder router.Recorder
	if comps.EventLog != nil {
		routeRecorder = comps.EventLog
	}
	rt := router.New(&accessAdapter{cfg: cfg, comps: comps}, routeRecorder)

	return &Bot{
		cfg:            cfg,
		comps:          comps,
		bot:            bot,
		dispatcher:     dispatcher,
		sender:         snd,
		router:         rt,
		webhookCleanup: !opts.DisableWebhookCleanup,
	}, nil
}

// Router exposes the route registry.
func (b *Bot) Router() *router.Router { return b.router }

// Sender exposes the outbound sender.
func (b *Bot) Sender() *tgsender.Sender { return b.sender }

// Locales exposes the locale storage; nil when not configured.
func (b *Bot) Locales() *locales.Manager { return b.comps.Locales }

// Roles exposes the role system.
func (b *Bot) Roles() *roles.Auth { return b.comps.Roles }

// State exposes the state system.
func (b *Bot) State() *state.Manager { return b.comps.State }

// Meta exposes the user metadata storage.
func (b *Bot) Meta() *usermeta.Store { return b.comps.Meta }

// EventLog exposes the persistent bot event log; nil when not configured.
func (b *Bot) EventLog() *botlog.Logger { return b.comps.EventLog }

// Start binds the handlers and runs the bot until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if b.webhookCleanup && strings.EqualFold(b.cfg.Telegram.RunMode, coreconfig.RunModeLongpoll) {
		if err := deleteWebhook(b.cfg.Telegram.Token, false); err != nil {
			logger.Warn(ctx, "tg", "delete_webhook",
				slog.String("err", err.Error()),
			)
		} else {
			logger.Info(ctx, "tg", "delete_webhook")
		}
	}

	if interval := b.cfg.RateLimit.IntervalMS; interval > 0 {
		exclude := make(map[string]struct{}, len(b.cfg.RateLimit.ExcludeUpdates))
		for _, kind := range b.cfg.RateLimit.ExcludeUpdates {
			exclude[kind] = struct{}{}
		}
		b.bot.Use(middleware.RateLimitMiddleware(middleware.RateLimitOptions{
			Interval: time.Duration(interval) * time.Millisecond,
			Exclude:  exclude,
		}))
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}
	b.bot.Handle(tele.OnText, wrap(b.router.TextHandler()))
	b.bot.Handle(tele.OnDocument, wrap(b.router.DocumentHandler()))
	b.bot.Handle(tele.OnPhoto, wrap(b.router.ImageHandler()))

	if b.comps.EventLog != nil {
		_ = b.comps.EventLog.Start(ctx)
	}

	runDone := make(chan struct{})
	go func() {
		b.bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		b.bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	if b.comps.EventLog != nil {
		_ = b.comps.EventLog.Stop(context.Background())
	}
	b.dispatcher.Close()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// accessAdapter exposes the role, state, and usermeta components to the
// router. Unknown users are initialized with the default role, the free
// state, and the default locale.
type accessAdapter struct {
	cfg   *coreconfig.Config
	comps Components
}

func (a *accessAdapter) EnsureUser(ctx context.Context, userID int64, username, firstName, lastName string) error {
	seed := storage.Document{
		roles.DefaultRolesField:  []string{a.cfg.Bot.DefaultRole},
		state.DefaultStateField:  a.comps.State.FreeState(),
		state.DefaultParamsField: storage.Document{},
	}
	meta := usermeta.Meta{
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		Locale:    a.cfg.Bot.DefaultLocale,
	}
	return a.comps.Meta.Init(ctx, userID, meta, seed)
}

func (a *accessAdapter) UserRoles(ctx context.Context, userID int64) ([]string, error) {
	return a.comps.Roles.UserRoles(ctx, userID)
}

func (a *accessAdapter) UserState(ctx context.Context, userID int64) (string, storage.Document, error) {
	st, err := a.comps.State.Get(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	return st.State, st.Params, nil
}

func logPollerMode(poller tele.Poller, cfg *coreconfig.Config, buildTook time.Duration) {
	if logger.TG == nil {
		return
	}
	switch p := poller.(type) {
	case *tele.Webhook:
		logger.TG.Info("webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
	default:
		timeoutSec := 10
		if cfg.Telegram.LongPollTimeoutSeconds > 0 {
			timeoutSec = cfg.Telegram.LongPollTimeoutSeconds
		}
		logger.TG.Info("polling mode",
			slog.String("event", "mode"),
			slog.String("mode", "polling"),
			slog.Int("timeout_seconds", timeoutSec),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
	}
}

func deleteWebhook(token string, dropPending bool) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/deleteWebhook", token)
	body := "drop_pending_updates=false"
	if dropPending {
		body = "drop_pending_updates=true"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
