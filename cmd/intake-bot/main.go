// Intake Bot - conversational application intake server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/intake-bot/internal/api"
	"github.com/ashureev/intake-bot/internal/bot"
	"github.com/ashureev/intake-bot/internal/config"
	"github.com/ashureev/intake-bot/internal/delivery"
	"github.com/ashureev/intake-bot/internal/flow"
	"github.com/ashureev/intake-bot/internal/gate"
	"github.com/ashureev/intake-bot/internal/identity"
	"github.com/ashureev/intake-bot/internal/middleware"
	"github.com/ashureev/intake-bot/internal/session"
	"github.com/ashureev/intake-bot/internal/store"
	"github.com/ashureev/intake-bot/internal/transport"
	"github.com/ashureev/intake-bot/internal/transport/telegram"
	"github.com/ashureev/intake-bot/internal/transport/webchat"
	"github.com/ashureev/intake-bot/web"
)

// outboxMaxAge bounds how long offline web chat frames are kept.
const outboxMaxAge = time.Hour

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"telegram", cfg.Telegram.Enabled(),
		"webchat", cfg.WebChat.Enabled,
		"admins", len(cfg.AdminIDs),
	)

	// Initialize storage.
	records, err := store.OpenRecords(cfg.DataFile, logger)
	if err != nil {
		return err
	}
	blocks, err := store.OpenBlocklist(ctx, cfg.BlockedFile, logger)
	if err != nil {
		return err
	}
	if n, err := records.Count(ctx); err != nil {
		logger.Warn("Record log unreadable at startup", "path", cfg.DataFile, "error", err)
	} else {
		logger.Info("Record log ready", "path", cfg.DataFile, "submissions", n, "blocked", blocks.Len())
	}

	// Initialize transports.
	mux := &transport.Mux{}
	var (
		poller *telegram.Poller
		hub    *webchat.Hub
	)
	if cfg.Telegram.Enabled() {
		client := telegram.NewClient(cfg.Telegram.Token,
			telegram.WithAPIURL(cfg.Telegram.APIURL),
			telegram.WithSendRate(cfg.Telegram.SendRate),
		)
		me, err := client.GetMe(ctx)
		if err != nil {
			return err
		}
		logger.Info("Telegram bot authorized", "username", me.Username)
		mux.Default(client)
		poller = telegram.NewPoller(client, cfg.Telegram.PollTimeout, logger)
	}
	if cfg.WebChat.Enabled {
		hub = webchat.NewHub(webchat.NewOutbox(cfg.WebChat.OutboxSize), logger)
		mux.Handle(identity.AnonPrefix, hub)
	}

	// Initialize services.
	graph, err := flow.SurveyGraph()
	if err != nil {
		return err
	}
	sessions := session.NewStore()
	entry := gate.New(blocks, cfg.Cooldown)
	fanout := delivery.New(mux, delivery.Options{
		MaxRetries:  cfg.Delivery.MaxRetries,
		Concurrency: cfg.Delivery.Concurrency,
		Logger:      logger,
	})
	engine := flow.NewEngine(flow.Config{
		Graph:      graph,
		Sessions:   sessions,
		Gate:       entry,
		Records:    records,
		Delivery:   fanout,
		Sender:     mux,
		Recipients: cfg.Recipients,
		Logger:     logger,
	})
	disp := bot.New(bot.Config{
		Engine:          engine,
		Admins:          identity.NewAdmins(cfg.AdminIDs),
		Records:         records,
		Blocks:          blocks,
		Gate:            entry,
		Sessions:        sessions,
		Sender:          mux,
		Delivery:        fanout,
		BroadcastChatID: cfg.BroadcastChatID,
		QueueSize:       cfg.UserQueueSize,
		Logger:          logger,
	})
	submit := func(upd transport.Update) {
		if err := disp.Submit(ctx, upd); err != nil {
			logger.Debug("Update dropped", "user_id", upd.User.ID, "error", err)
		}
	}

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	status := &api.StatusHandler{
		Records:  records,
		Sessions: sessions,
		Blocks:   blocks,
		Telegram: cfg.Telegram.Enabled(),
		Started:  time.Now(),
		Logger:   logger,
	}
	if hub != nil {
		status.Connected = hub.Connected
		chat := webchat.NewHandler(hub, submit, cfg.FrontendURL, cfg.IsDevelopment(), logger)
		r.With(identity.Middleware(cfg.IsDevelopment())).Get("/ws/chat", chat.ServeHTTP)
	}
	r.Get("/api/status", status.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Note: websocket connections are long-lived (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start session sweeper.
	sweeper := &session.Sweeper{
		Store:    sessions,
		TTL:      cfg.SessionTTL,
		OnExpire: engine.Expired,
		OnTick: func() {
			if n := entry.Evict(); n > 0 {
				logger.Debug("Evicted stale cooldowns", "count", n)
			}
			if hub != nil {
				if n := hub.Outbox().Prune(outboxMaxAge); n > 0 {
					logger.Debug("Pruned web chat outbox", "count", n)
				}
			}
		},
		Logger: logger,
	}
	sweeperDone := sweeper.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return disp.Run(gctx) })
	if poller != nil {
		g.Go(func() error { return poller.Run(gctx, submit) })
	}
	g.Go(func() error {
		logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	stop()
	<-sweeperDone
	return err
}
