// Package bootstrap wires configuration, logging, a storage backend, and
// the domain components into a ready-to-start bot. It sits above the other
// core packages so backend packages stay free of config imports.
package bootstrap

import (
	"context"
	"fmt"

	"botkit/core/botlog"
	coreconfig "botkit/core/config"
	"botkit/core/locales"
	"botkit/core/logger"
	"botkit/core/roles"
	"botkit/core/state"
	"botkit/core/storage"
	storagelocal "botkit/core/storage/local"
	storagemongo "botkit/core/storage/mongo"
	storagepg "botkit/core/storage/postgres"
	coretelegram "botkit/core/telegram"
	"botkit/core/usermeta"
)

// Storage drivers accepted by StorageOptions.Driver.
const (
	DriverMemory   = "memory"
	DriverLocal    = "local"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// StorageOptions select and configure the storage backend.
type StorageOptions struct {
	Driver string

	// LocalFolder is the data folder for the local JSON driver.
	LocalFolder string
	Mongo       storagemongo.Config
	Postgres    storagepg.Config
}

// Options control the bootstrap pipeline.
type Options struct {
	Config  *coreconfig.Config
	Storage StorageOptions

	LoggerInit func(*coreconfig.Config) error

	// SkipEventLog disables the persistent bot event log.
	SkipEventLog bool
	// SkipLocales disables locale loading for bots without localized replies.
	SkipLocales bool
}

// Result exposes everything initialized by the bootstrap pipeline.
type Result struct {
	Store storage.Store
	Bot   *coretelegram.Bot

	Roles    *roles.Auth
	State    *state.Manager
	Meta     *usermeta.Store
	Locales  *locales.Manager
	EventLog *botlog.Logger
}

// Run initializes the logger, opens the storage backend, builds the domain
// components, and assembles the bot.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	store, err := openStore(ctx, opts.Storage)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: storage initialization failed: %w", err)
	}

	result, err := buildComponents(ctx, cfg, store, opts)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	return result, nil
}

func openStore(ctx context.Context, opts StorageOptions) (storage.Store, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return storage.NewMemoryStore(), nil
	case DriverLocal:
		return storagelocal.New(opts.LocalFolder)
	case DriverMongo:
		return storagemongo.Connect(ctx, opts.Mongo)
	case DriverPostgres:
		return storagepg.Open(ctx, opts.Postgres)
	}
	return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
}

func buildComponents(ctx context.Context, cfg *coreconfig.Config, store storage.Store, opts Options) (*Result, error) {
	roleMap := make(map[string]string, len(cfg.Bot.Roles))
	for name, rc := range cfg.Bot.Roles {
		roleMap[name] = rc.Password
	}
	auth := roles.NewAuth(store, roleMap, roles.Options{
		Collection: cfg.Bot.UsersCollection,
	})

	stateMgr := state.NewManager(store, state.Options{
		Collection: cfg.Bot.UsersCollection,
		FreeState:  cfg.Bot.FreeState,
		States:     cfg.Bot.States,
		WithParams: cfg.Bot.StateWithParams,
	})

	meta := usermeta.NewStore(store, usermeta.Options{
		Collection:    cfg.Bot.UsersCollection,
		DefaultLocale: cfg.Bot.DefaultLocale,
	})

	var eventLog *botlog.Logger
	if !opts.SkipEventLog {
		var err error
		eventLog, err = botlog.New(store, botlog.Options{
			Collection:  cfg.Bot.LogsCollection,
			ShortParams: true,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: event log init failed: %w", err)
		}
	}

	var localeMgr *locales.Manager
	if !opts.SkipLocales {
		var err error
		localeMgr, err = locales.New(cfg.Bot.LocalesFolder)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: locale load failed: %w", err)
		}
	}

	bot, err := coretelegram.New(coretelegram.Options{
		Config: cfg,
		Components: coretelegram.Components{
			Store:    store,
			Roles:    auth,
			State:    stateMgr,
			Meta:     meta,
			Locales:  localeMgr,
			EventLog: eventLog,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: bot initialization failed: %w", err)
	}

	return &Result{
		Store:    store,
		Bot:      bot,
		Roles:    auth,
		State:    stateMgr,
		Meta:     meta,
		Locales:  localeMgr,
		EventLog: eventLog,
	}, nil
}
