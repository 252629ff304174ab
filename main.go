package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"homecare-cloud/internal/audit"
	"homecare-cloud/internal/auth"
	billingapp "homecare-cloud/internal/billing/application"
	billingcache "homecare-cloud/internal/billing/infrastructure/cache"
	"homecare-cloud/internal/billing/infrastructure/holidays"
	billingrepo "homecare-cloud/internal/billing/infrastructure/postgres"
	billinginterfaces "homecare-cloud/internal/billing/interfaces"
	"homecare-cloud/internal/eventing"
	eventingrepo "homecare-cloud/internal/eventing/infrastructure/postgres"
	"homecare-cloud/internal/eventing/infrastructure/rabbitmq"
	"homecare-cloud/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("dotenv load error: %v", err)
	}
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	billingCfg, err := billingapp.LoadConfig()
	if err != nil {
		logger.Fatalf("billing config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init(db, logger)
	customerChecker := auth.NewCustomerChecker(db)
	auditRepo := audit.NewRepository(db)

	registry := eventing.NewRegistry()
	registry.Register(billingapp.BillsCommitted{})
	registry.Register(billingapp.BillVoided{})

	outboxStore := eventingrepo.NewOutboxStore(db, eventingrepo.WithMaxAttempts(cfg.OutboxMaxAttempts))
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)

	var bus eventing.EventBus = rabbitmq.LoggingBus{Logger: logger}
	if cfg.AMQPURL != "" {
		producer, err := rabbitmq.NewProducer(cfg.AMQPURL, billingCfg.Relay.Exchange, billingCfg.Relay.RoutingKey)
		if err != nil {
			logger.Fatalf("amqp producer error: %v", err)
		}
		defer producer.Close()
		bus = producer
	}
	dispatcher := eventing.NewDispatcher(bus, outboxStore, registry, dlqStore)
	relay := eventing.NewRelay(dispatcher, billingCfg.Relay.Schedule, billingCfg.Relay.BatchSize, logger)
	if err := relay.Start(ctx); err != nil {
		logger.Fatalf("outbox relay error: %v", err)
	}
	defer relay.Stop()

	if cfg.AMQPURL != "" && cfg.ConsumerQueue != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.AMQPURL, registry, logger)
		if err != nil {
			logger.Fatalf("amqp consumer error: %v", err)
		}
		defer consumer.Close()
		handler := eventing.WrapHandler("billing.log", func(ctx context.Context, event any) error {
			switch evt := event.(type) {
			case billingapp.BillsCommitted:
				logger.Printf("bills committed received: company=%s bills=%d", evt.CompanyID, len(evt.BillIDs))
			case billingapp.BillVoided:
				logger.Printf("bill voided received: company=%s bill=%s", evt.CompanyID, evt.BillID)
			}
			return nil
		}, processedStore)
		bindingKey := billingCfg.Relay.RoutingKey + ".#"
		if err := consumer.Consume(ctx, billingCfg.Relay.Exchange, cfg.ConsumerQueue, bindingKey, handler); err != nil {
			logger.Fatalf("amqp consume error: %v", err)
		}
	}

	billingLoc, err := billingCfg.Location()
	if err != nil {
		logger.Fatalf("billing timezone error: %v", err)
	}
	eventSource := billingrepo.NewEventSource(db, billingrepo.WithLocation(billingLoc))
	fundingSource := billingrepo.NewFundingSource(db)
	surchargeSource := billingcache.NewSurchargeCache(billingrepo.NewSurchargeSource(db), billingCfg.SurchargeCacheSize, billingCfg.SurchargeCacheTTL)
	draftService, err := billingapp.NewDraftBillService(eventSource, fundingSource, surchargeSource,
		billingapp.WithHolidays(holidays.NewFrenchCalendar()),
		billingapp.WithConfig(billingCfg),
		billingapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("draft bill service error: %v", err)
	}

	publisher := eventing.NewPublisher(outboxStore, "")
	billRepo := billingrepo.NewBillRepository(db)
	billService, err := billingapp.NewBillService(billRepo, billinginterfaces.NewOutboxPublisher(publisher), billingapp.SystemClock{}, billingCfg, logger)
	if err != nil {
		logger.Fatalf("bill service error: %v", err)
	}
	billHandler, err := billinginterfaces.NewBillHandler(draftService, billService, customerChecker, auditRepo)
	if err != nil {
		logger.Fatalf("bill handler error: %v", err)
	}
	relayHandler, err := billinginterfaces.NewRelayHandler(relay)
	if err != nil {
		logger.Fatalf("relay handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/bills", billHandler)
	mux.Handle("/api/v1/bills/", billHandler)
	mux.Handle("/api/v1/outbox/relay", relayHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("http server error: %v", err)
	}
}

type config struct {
	DatabaseURL       string
	HTTPAddr          string
	JWTSecret         string
	AMQPURL           string
	ConsumerQueue     string
	OutboxMaxAttempts int
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:         getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		AMQPURL:           getenvDefault("AMQP_URL", ""),
		ConsumerQueue:     getenvDefault("BILLING_CONSUMER_QUEUE", ""),
		OutboxMaxAttempts: getenvIntDefault("OUTBOX_MAX_ATTEMPTS", 5),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
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
