package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/chatdesk/chatdesk/internal/accounts"
	"github.com/chatdesk/chatdesk/internal/config"
	"github.com/chatdesk/chatdesk/internal/contacts"
	"github.com/chatdesk/chatdesk/internal/db"
	"github.com/chatdesk/chatdesk/internal/errtrack"
	"github.com/chatdesk/chatdesk/internal/handlers"
	"github.com/chatdesk/chatdesk/internal/logger"
	"github.com/chatdesk/chatdesk/internal/media"
	"github.com/chatdesk/chatdesk/internal/messages"
	"github.com/chatdesk/chatdesk/internal/messages/event"
	"github.com/chatdesk/chatdesk/internal/queues"
	"github.com/chatdesk/chatdesk/internal/routing"
	"github.com/chatdesk/chatdesk/internal/server"
	"github.com/chatdesk/chatdesk/internal/storage"
	"github.com/chatdesk/chatdesk/internal/tickets"
	"github.com/chatdesk/chatdesk/internal/transport"
	"github.com/chatdesk/chatdesk/internal/version"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the routing engine and API server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideTracker,
			provideDBConn,

			event.NewHub,
			func(hub *event.Hub) event.Publisher { return hub },
			func(hub *event.Hub) event.Subscriber { return hub },

			provideMediaService,
			queues.NewService,
			provideAccountService,
			contacts.NewService,
			tickets.NewService,
			messages.NewService,

			provideEngine,
			routing.NewListener,
			transport.NewRegistry,
			routing.NewSessionManager,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideTicketHandler),
			provideServerHandler(handlers.NewAccountHandler),
			provideServerHandler(handlers.NewMediaHandler),

			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideTracker(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*errtrack.Tracker, error) {
	tracker, err := errtrack.Init(log, cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("init error tracking: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			tracker.Close()
			return nil
		},
	})
	return tracker, nil
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func provideMediaService(log *slog.Logger, cfg config.Config) (*media.Service, error) {
	store, err := storage.NewLocal(cfg.Media.Dir, cfg.Media.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("media storage: %w", err)
	}
	return media.NewService(log, store), nil
}

func provideAccountService(log *slog.Logger, conn *pgxpool.Pool, queueService *queues.Service) *accounts.Service {
	return accounts.NewService(log, conn, queueService)
}

func provideEngine(
	lc fx.Lifecycle,
	log *slog.Logger,
	cfg config.Config,
	contactService *contacts.Service,
	accountService *accounts.Service,
	ticketService *tickets.Service,
	messageService *messages.Service,
	queueService *queues.Service,
	mediaService *media.Service,
	events event.Publisher,
	tracker *errtrack.Tracker,
) *routing.Engine {
	engine := routing.NewEngine(log, routing.Config{
		MenuDebounce: time.Duration(cfg.Engine.MenuDebounceMs) * time.Millisecond,
		AckDelay:     time.Duration(cfg.Engine.AckDelayMs) * time.Millisecond,
	}, routing.Deps{
		Contacts: contactService,
		Accounts: accountService,
		Tickets:  ticketService,
		Messages: messageService,
		Queues:   queueService,
		Media:    mediaService,
		Events:   events,
		Tracker:  tracker,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			engine.Close()
			return nil
		},
	})
	return engine
}

func provideTicketHandler(log *slog.Logger, cfg config.Config, ticketService *tickets.Service, messageService *messages.Service, events event.Subscriber) *handlers.TicketHandler {
	return handlers.NewTicketHandler(log, ticketService, messageService, events, cfg.Engine.EventBuffer)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startServer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
	sessions *routing.SessionManager,
) {
	fmt.Printf("Starting Chatdesk %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil { // block until server is stopped
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown() // shutdown the application if the server fails to start
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sessions.Close()
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
