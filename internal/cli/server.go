package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studyguide-quiz/internal/app"
	"studyguide-quiz/internal/auth"
	"studyguide-quiz/internal/config"
	"studyguide-quiz/internal/infra/generator"
	"studyguide-quiz/internal/infra/memory"
	pghistory "studyguide-quiz/internal/infra/postgres"
	"studyguide-quiz/internal/infra/provider"
	redisstore "studyguide-quiz/internal/infra/redis"
	"studyguide-quiz/internal/logging"
	"studyguide-quiz/internal/metrics"
	transport "studyguide-quiz/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	service, closeDeps, err := newService(ctx, cfg, log, app.WithObserver(m))
	if err != nil {
		return err
	}
	defer closeDeps()

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	if !verifier.Verifies() {
		log.Warn("auth.jwt_secret is empty, token signatures are not checked")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", transport.NewWSHandler(service, verifier, log.Named("ws")).ServeWS)
	mux.Handle("/history", transport.HistoryHandler(service, verifier, log.Named("history")))
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newService wires the quiz service from config. Redis and Postgres are used
// when configured; otherwise everything stays in memory.
func newService(ctx context.Context, cfg config.Config, log *zap.Logger, opts ...app.Option) (*app.QuizService, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var quizProvider app.QuizProvider
	if cfg.Provider.BaseURL != "" {
		timeout := config.TTLDuration(cfg.Provider.Timeout, 60*time.Second)
		quizProvider = provider.NewClient(cfg.Provider.BaseURL, timeout, log)
	} else {
		dir := cfg.Provider.DocumentsDir
		if dir == "" {
			dir = "documents"
		}
		log.Info("no provider url configured, generating quizzes locally", zap.String("dir", dir))
		quizProvider = generator.New(dir)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	var sessions app.SessionRepository = memory.NewSessionStore()
	if redisClient != nil {
		sessions = redisstore.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 30*time.Minute))
	}

	var history app.HistoryRepository
	switch {
	case cfg.Postgres.URL != "":
		if err := Migrate(ctx, cfg.Postgres.URL, log); err != nil {
			closeAll()
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		history = pghistory.NewHistoryStore(pool)
	case redisClient != nil:
		history = redisstore.NewHistoryStore(redisClient,
			config.TTLDuration(cfg.History.TTL, 30*24*time.Hour), cfg.History.MaxEntries)
	default:
		history = memory.NewHistoryStore()
	}

	opts = append([]app.Option{
		app.WithLogger(log.Named("quiz")),
		app.WithDefaultQuestionCount(cfg.Provider.NumQuestions),
	}, opts...)
	return app.NewQuizService(quizProvider, sessions, history, opts...), closeAll, nil
}
