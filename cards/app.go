package cards

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"golang.org/x/exp/slog"

	"github.com/nastian/bankcards/internal/auth"
	"github.com/nastian/bankcards/internal/cardcrypto"
	"github.com/nastian/bankcards/internal/cardnum"
	"github.com/nastian/bankcards/internal/middleware"
)

// App assembles and runs the whole service: repository backend, card and
// transfer services, HTTP API, metrics and the expiry sweep.
type App struct {
	Addr string

	config *Config
	logger *slog.Logger
	srv    *http.Server
	wg     *sync.WaitGroup
	db     *sql.DB
	cron   *cron.Cron
}

func NewApp(logger *slog.Logger, config *Config) *App {
	return &App{
		logger: logger.With(slog.String("app", "bankcards")),
		config: config,
		wg:     &sync.WaitGroup{},
	}
}

func (a *App) Start() error {
	a.logger.Info("starting app...")

	var repository *Repository
	switch a.config.Backend {
	case "pg":
		db, err := sql.Open("postgres", a.config.DBDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(10)
		if err := db.Ping(); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		a.db = db
		repository = NewPGRepository(db)
	case "mem":
		repository = NewRepository()
	default:
		return fmt.Errorf("unsupported REPO_BACKEND=%s", a.config.Backend)
	}

	codec, err := cardcrypto.NewCodec([]byte(a.config.EncryptionKey))
	if err != nil {
		return fmt.Errorf("building codec: %w", err)
	}
	generator := cardnum.NewGenerator(nil)
	tokens := auth.NewTokenProvider([]byte(a.config.JWTSecret), a.config.TokenTTL)

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	cardsSvc := NewService(repository, codec, generator, a.config.CardNumberPrefix, a.logger)
	transfers := NewTransferEngine(repository, cardsSvc, metrics, a.logger)
	authSvc := NewAuthService(repository, tokens, a.logger)
	adminSvc := NewAdminService(repository, a.logger)

	router := chi.NewRouter()
	router.Use(middleware.NewStructuredLogger(a.logger))

	api := NewAPI(authSvc, cardsSvc, transfers, adminSvc, tokens)
	api.AppendRoutes(router)

	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repository.Ping(ctx); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if a.config.SweepSpec != "" {
		sweeper := NewSweeper(repository, metrics, a.logger, a.config.ReissueWindowDays)
		a.cron = cron.New()
		_, err := a.cron.AddFunc(a.config.SweepSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			_ = sweeper.Run(ctx)
		})
		if err != nil {
			return fmt.Errorf("scheduling expiry sweep: %w", err)
		}
		a.cron.Start()
	}

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}
	a.Addr = l.Addr().String()
	a.srv = &http.Server{Handler: router}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}
			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	a.srv.Shutdown(context.Background())
	if a.db != nil {
		a.db.Close()
	}
	a.wg.Wait()

	a.logger.Info("app stopped")
}
