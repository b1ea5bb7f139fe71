// Package app wires configuration, storage, providers and transports into a
// runnable bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	slackapi "github.com/slack-go/slack"

	"github.com/m3rciful/callerbot/bot/config"
	"github.com/m3rciful/callerbot/bot/flow"
	"github.com/m3rciful/callerbot/bot/notify"
	"github.com/m3rciful/callerbot/bot/provider"
	"github.com/m3rciful/callerbot/bot/session"
	"github.com/m3rciful/callerbot/bot/webhook"
	"github.com/m3rciful/callerbot/core/bootstrap"
	corecmd "github.com/m3rciful/callerbot/core/cmd"
	coreconfig "github.com/m3rciful/callerbot/core/config"
	"github.com/m3rciful/callerbot/core/logger"
	"github.com/m3rciful/callerbot/core/netutil"
	coretelegram "github.com/m3rciful/callerbot/core/telegram"
	"github.com/m3rciful/callerbot/core/telegram/router"
	"github.com/m3rciful/callerbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const redisPingTimeout = 5 * time.Second

// Deps overrides infrastructure that New would otherwise build from config.
type Deps struct {
	DB    *sqlx.DB
	Redis *redis.Client
	Bot   *tele.Bot
	Slack notify.SlackPoster
}

// App is the assembled bot.
type App struct {
	cfg      *config.Config
	bot      *tele.Bot
	db       *sqlx.DB
	redis    *redis.Client
	notifyQ  *sender.Dispatcher
	engine   *flow.Engine
	registry *coretelegram.Registry
}

var _ corecmd.TelegramApp = (*App)(nil)

// Bootstrap initializes the logger and, for the postgres store, the database,
// then builds the App. It matches corecmd.Options.Bootstrap.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	infra, err := bootstrap.Run(bootstrap.Options{
		Config:       cfg.CoreConfig(),
		Database:     cfg.Database,
		WithDatabase: cfg.Store.Driver == config.StorePostgres,
	})
	if err != nil {
		return nil, err
	}
	// New owns infra.DB from here on, including on failure.
	a, err := New(cfg, Deps{DB: infra.DB})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// LoadConfig adapts config.Load to corecmd.Options.LoadConfig.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// New builds every component from cfg. cfg must be normalized.
func New(cfg *config.Config, deps Deps) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{cfg: cfg, db: deps.DB, redis: deps.Redis, bot: deps.Bot}

	store, err := a.buildStore()
	if err != nil {
		_ = a.closeInfra()
		return nil, err
	}

	if a.bot == nil {
		if a.bot, err = coretelegram.NewBot(cfg.CoreConfig()); err != nil {
			_ = a.closeInfra()
			return nil, err
		}
	}

	popts := provider.Options{
		AuthURL:   cfg.Provider.AuthURL,
		SearchURL: cfg.Provider.SearchURL,
		Timeout:   cfg.Provider.Timeout,
		UserAgent: cfg.Provider.UserAgent,
		Language:  cfg.Provider.Language,
		App: provider.AppInfo{
			Major: cfg.Provider.AppMajor,
			Minor: cfg.Provider.AppMinor,
			Build: cfg.Provider.AppBuild,
			Store: cfg.Provider.AppStore,
		},
	}

	a.notifyQ = sender.NewDispatcher(sender.Options{
		QueueSize:  cfg.Notify.QueueSize,
		Workers:    cfg.Notify.Workers,
		MaxRetries: cfg.Notify.MaxRetries,
		Component:  "notify",
	})
	slack := deps.Slack
	if slack == nil && cfg.Notify.SlackToken != "" {
		slack = slackapi.New(cfg.Notify.SlackToken)
	}
	notifier := notify.New(notify.Options{
		Dispatcher:   a.notifyQ,
		Bot:          a.bot,
		Typing:       cfg.Notify.Typing != nil && *cfg.Notify.Typing,
		AdminChatID:  cfg.Telegram.AdminID,
		AnalyticsURL: cfg.Notify.AnalyticsURL,
		HTTPClient:   netutil.BuildHTTPClient(netutil.ClientOptions{Timeout: 5 * time.Second, Retries: 1, Backoff: 250 * time.Millisecond}),
		Slack:        slack,
		SlackChannel: cfg.Notify.SlackChannel,
	})

	eopts := flow.Options{
		Store:    store,
		Auth:     provider.NewAuthClient(popts),
		Lookup:   provider.NewSearchClient(popts),
		Notifier: notifier,
	}
	if cfg.Store.SerializePerChat == nil || *cfg.Store.SerializePerChat {
		eopts.Locks = session.NewChatLocks()
	}
	if a.engine, err = flow.NewEngine(eopts); err != nil {
		a.notifyQ.Close()
		_ = a.closeInfra()
		return nil, err
	}

	a.registry = buildRegistry(a.handle)

	logger.Info(logger.Background(), "app", "wired",
		slog.String("store", cfg.Store.Driver),
		slog.String("run_mode", cfg.Telegram.RunMode),
		slog.Bool("serialize_per_chat", eopts.Locks != nil),
		slog.Bool("slack", slack != nil),
		slog.Bool("analytics", cfg.Notify.AnalyticsURL != ""),
	)
	return a, nil
}

func (a *App) buildStore() (session.Store, error) {
	sc := a.cfg.Store
	opts := session.Options{DB: a.db, KeyPrefix: sc.Redis.KeyPrefix, TTL: sc.TTL}
	if sc.Driver == config.StoreRedis {
		if a.redis == nil {
			a.redis = redis.NewClient(&redis.Options{
				Addr:     sc.Redis.Addr,
				Password: sc.Redis.Password,
				DB:       sc.Redis.DB,
			})
		}
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("app: redis ping: %w", err)
		}
		opts.Redis = a.redis
	}
	store, err := session.NewStore(sc.Driver, opts)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return store, nil
}

// Engine exposes the state machine.
func (a *App) Engine() *flow.Engine { return a.engine }

// Registry exposes the command registry.
func (a *App) Registry() *coretelegram.Registry { return a.registry }

// WebhookServer builds the HTTP endpoint for webhook mode.
func (a *App) WebhookServer() *webhook.Server {
	core := a.cfg.CoreConfig()
	return webhook.New(a.engine, webhook.Options{
		Addr:        net.JoinHostPort(core.Webhook.Listen, strconv.Itoa(core.Webhook.Port)),
		Path:        core.Webhook.Path,
		SecretToken: core.Webhook.SecretToken,
	})
}

// TelegramRunOptions implements corecmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	opts := coretelegram.RunOptions{
		Config:            core,
		Registry:          a.registry,
		Bot:               a.bot,
		DispatcherOptions: sender.Options{Component: "tg.sender"},
		OnStop:            a.stop,
	}

	if core.Telegram.RunMode == coreconfig.RunModeWebhook {
		srv := a.WebhookServer()
		opts.Serve = func(ctx context.Context, _ coretelegram.Runtime) error {
			return srv.Run(ctx)
		}
		return opts, nil
	}

	opts.Middlewares = coretelegram.DefaultMiddlewares(core, nil)
	opts.Routes = append(router.CommandRoutes(a.registry), router.UpdateRoutes(a.registry, router.UpdateOptions{
		Text:       a.handle,
		Membership: a.handle,
	})...)
	return opts, nil
}

func (a *App) stop(ctx context.Context, _ coretelegram.Runtime) error {
	a.notifyQ.Close()
	if n := a.notifyQ.ErrorCount(); n > 0 {
		logger.Warn(ctx, "app", "notify.failures", slog.Uint64("count", n))
	}
	return a.closeInfra()
}

func (a *App) closeInfra() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
