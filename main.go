package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plant-onboarding/internal/audit"
	"plant-onboarding/internal/auth"
	"plant-onboarding/internal/gateway"
	"plant-onboarding/internal/notify"
	"plant-onboarding/internal/observability/metrics"
	"plant-onboarding/internal/onboarding/application"
	"plant-onboarding/internal/onboarding/infrastructure/store"
	wizardhttp "plant-onboarding/internal/onboarding/interfaces/http"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	loadEnvFile(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	backend, err := store.New(store.Config{Type: cfg.StoreType, DSN: cfg.StoreDSN})
	if err != nil {
		logger.Fatalf("store open error: %v", err)
	}
	defer backend.Close()

	metrics.Init(backend.DB(), logger)

	var auditLogger audit.Logger = audit.NewLogLogger(logger)
	if db := backend.DB(); db != nil {
		repo, err := audit.NewRepository(db, backend.Dialect())
		if err != nil {
			logger.Fatalf("audit repo error: %v", err)
		}
		auditLogger = repo
	}

	client, err := gateway.NewClient(cfg.BackendBaseURL, cfg.BackendToken,
		gateway.WithTimeout(cfg.BackendTimeout),
		gateway.WithRateLimit(cfg.BackendRateLimit),
		gateway.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("gateway client error: %v", err)
	}

	wizardOpts := []application.Option{
		application.WithLogger(logger),
		application.WithDebounce(cfg.FormulaDebounce),
		application.WithValidateTimeout(cfg.ValidateTimeout),
		application.WithAssetTypes(cfg.AssetTypes),
	}
	if cfg.NotifyWebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.NotifyWebhookURL)
		if err != nil {
			logger.Fatalf("notify webhook error: %v", err)
		}
		tpl, err := notify.NewTemplate(cfg.NotifyTemplate)
		if err != nil {
			logger.Fatalf("notify template error: %v", err)
		}
		notifier, err := notify.NewNotifier(channel, tpl,
			notify.WithDedupeWindow(cfg.NotifyDedupeWindow),
			notify.WithRequestTimeout(cfg.NotifyTimeout),
			notify.WithLogger(logger),
		)
		if err != nil {
			logger.Fatalf("notifier error: %v", err)
		}
		wizardOpts = append(wizardOpts, application.WithNotifier(notify.NewMultiNotifier(notifier)))
	}

	sessions, err := application.NewSessions(backend, client, wizardOpts...)
	if err != nil {
		logger.Fatalf("sessions error: %v", err)
	}
	defer sessions.Close()

	wizardHandler, err := wizardhttp.NewHandler(sessions, auditLogger, logger)
	if err != nil {
		logger.Fatalf("wizard handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle(wizardhttp.Prefix, wizardHandler)
	mux.Handle(wizardhttp.Prefix+"/", wizardHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		handler = auth.NewMiddleware([]byte(cfg.JWTSecret), policy).Wrap(mux)
	} else {
		logger.Printf("auth disabled: AUTH_JWT_SECRET not set, all requests share session=%s", application.DefaultSession)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sessions.RunEviction(ctx, cfg.SessionIdle, cfg.SessionSweep)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("http listening on %s store=%s backend=%s", cfg.HTTPAddr, cfg.StoreType, cfg.BackendBaseURL)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server error: %v", err)
	}
}

func loadEnvFile(logger *log.Logger) {
	if path := os.Getenv("ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			logger.Fatalf("env file error: %v", err)
		}
		return
	}
	// .env is optional
	_ = godotenv.Load()
}

const requestIDHeader = "X-Request-ID"

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set(requestIDHeader, requestID)
		}
		w.Header().Set(requestIDHeader, requestID)
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s request_id=%s", r.Method, r.URL.Path, resp.status, time.Since(start), requestID)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
