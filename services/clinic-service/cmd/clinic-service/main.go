package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/revenue"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "clinic-service")
	port, err := config.Port("PORT", "8082")
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

	outboxRepo := outbox.NewRepository()
	clinicRepo := storage.NewClinicRepository(pool)
	catalogRepo := storage.NewCatalogRepository(pool)
	appointmentRepo := storage.NewAppointmentRepository(pool, outboxRepo)
	paymentRepo := storage.NewPaymentRepository(pool, outboxRepo)

	failMode := scheduling.ParseFailMode(config.String("CONFLICT_FAIL_MODE", ""))
	detector := scheduling.NewDetector(appointmentRepo, logger, failMode)
	manager := booking.NewManager(catalogRepo, catalogRepo, appointmentRepo, detector, logger)
	aggregator := revenue.NewAggregator(paymentRepo)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	appointmentHandler := handlers.NewAppointmentHandler(manager, logger)
	adminHandler := handlers.NewAdminHandler(clinicRepo, logger)
	catalogHandler := handlers.NewCatalogHandler(catalogRepo, clinicRepo, logger)
	revenueHandler := handlers.NewRevenueHandler(aggregator, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentRepo, manager, logger, handlers.PaymentConfig{
		StripeWebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance: parseToleranceSeconds(config.String("STRIPE_WEBHOOK_TOLERANCE_SECONDS", "300")),
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/public/clinics", catalogHandler.PublicClinics)
	mux.HandleFunc("/api/v1/public/services", catalogHandler.PublicServices)
	mux.HandleFunc("/api/v1/public/doctors", catalogHandler.PublicDoctors)
	mux.HandleFunc("/api/v1/public/slots", appointmentHandler.Slots)
	mux.HandleFunc("/api/v1/appointments", appointmentHandler.Appointments)
	mux.HandleFunc("/api/v1/appointments/get", appointmentHandler.Get)
	mux.HandleFunc("/api/v1/appointments/cancel", appointmentHandler.Cancel)
	mux.HandleFunc("/api/v1/appointments/complete", appointmentHandler.Complete)
	mux.HandleFunc("/api/v1/appointments/update", appointmentHandler.Update)
	mux.HandleFunc("/api/v1/clinic/services", catalogHandler.CreateService)
	mux.HandleFunc("/api/v1/clinic/doctors", catalogHandler.CreateDoctor)
	mux.HandleFunc("/api/v1/clinic/revenue", revenueHandler.ClinicRevenue)
	mux.HandleFunc("/api/v1/clinic/payments", paymentHandler.RecordManual)
	mux.HandleFunc("/api/v1/admin/clinics", adminHandler.Clinics)
	mux.HandleFunc("/api/v1/admin/clinics/delete", adminHandler.DeleteClinic)
	mux.HandleFunc("/api/v1/admin/revenue", revenueHandler.TotalRevenue)
	mux.HandleFunc("/api/v1/payments/webhooks/stripe", paymentHandler.StripeWebhook)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "clinic")
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

func parseToleranceSeconds(raw string) time.Duration {
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(secs) * time.Second
}
