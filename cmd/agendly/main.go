package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"agendly/internal/booking"
	"agendly/internal/handlers"
	"agendly/internal/observability"
	"agendly/internal/outbox"
	"agendly/internal/schedule"
	"agendly/internal/storage"
	"agendly/libs/config"
	"agendly/libs/db"
	"agendly/libs/httpx"
	"agendly/libs/kafkax"
	otelx "agendly/libs/otel"
	"agendly/libs/runtime"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "agendly")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository()

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	stepMinutes := config.Int("SLOT_STEP_MINUTES", schedule.DefaultStepMinutes)
	metrics := observability.NewBookingMetrics(nil)
	bookingSvc := booking.NewService(repo, outboxRepo, logger, stepMinutes)
	resolver := schedule.NewResolver(repo, stepMinutes)

	publicHandler := handlers.NewPublicHandler(resolver, bookingSvc, metrics, logger)
	dashboardHandler := handlers.NewDashboardHandler(repo, bookingSvc, metrics, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(repo, outboxRepo, logger, handlers.StripeWebhookConfig{
		Secret:           config.String("STRIPE_WEBHOOK_SECRET", ""),
		ToleranceSeconds: config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300),
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)
	mux.Handle("/metrics", observability.Handler())

	// Only the public booking surface is rate limited; the dashboard sits
	// behind the authenticating gateway.
	publicLimit := publicRateLimit(logger)
	mux.Handle("/api/v1/public/dates", publicLimit(http.HandlerFunc(publicHandler.Dates)))
	mux.Handle("/api/v1/public/slots", publicLimit(http.HandlerFunc(publicHandler.Slots)))
	mux.Handle("/api/v1/public/book", publicLimit(http.HandlerFunc(publicHandler.Book)))

	mux.HandleFunc("/api/v1/dashboard/availability", dashboardHandler.Availability)
	mux.HandleFunc("/api/v1/dashboard/availability/toggle", dashboardHandler.ToggleAvailability)
	mux.HandleFunc("/api/v1/dashboard/professionals", dashboardHandler.Professionals)
	mux.HandleFunc("/api/v1/dashboard/services", dashboardHandler.Services)
	mux.HandleFunc("/api/v1/dashboard/appointments", dashboardHandler.Appointments)
	mux.HandleFunc("/api/v1/dashboard/appointments/status", dashboardHandler.UpdateAppointmentStatus)
	mux.HandleFunc("/api/v1/dashboard/clients/block", dashboardHandler.BlockClient)
	mux.HandleFunc("/api/v1/dashboard/clients/unblock", dashboardHandler.UnblockClient)
	mux.HandleFunc("/api/v1/dashboard/clients/blocked", dashboardHandler.ListBlockedClients)

	mux.Handle("/webhooks/stripe", webhookHandler)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Business-Id,X-Request-Id")),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// publicRateLimit returns the limiter for the unauthenticated routes:
// redis-backed fixed window when REDIS_ADDR is set, in-memory otherwise.
func publicRateLimit(logger *slog.Logger) httpx.Middleware {
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)

	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
		return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}

	rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
	logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	return rl.Middleware()
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
