package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/clinicbook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// appointmentEvent mirrors the payload clinic-service writes for
// clinic.appointment.booked.v1 and clinic.appointment.cancelled.v1.
type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	ClinicID      string `json:"clinic_id"`
	ServiceID     string `json:"service_id"`
	DoctorID      string `json:"doctor_id"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email"`
	ClientPhone   string `json:"client_phone"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
}

func writeOutboxEvent(ctx context.Context, pool *db.Pool, outboxRepo *outbox.Repository, eventType string, evt appointmentEvent, kind string, channel string, detail map[string]any) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	payload := map[string]any{
		"appointment_id": evt.AppointmentID,
		"clinic_id":      evt.ClinicID,
		"kind":           kind,
		"channel":        channel,
	}
	for k, v := range detail {
		payload[k] = v
	}
	eventPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if err := outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   evt.AppointmentID,
		EventType:     eventType,
		Payload:       eventPayload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository()
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@clinicbook.local")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

	smsProvider := strings.ToLower(config.String("SMS_PROVIDER", "noop"))
	smsWebhookURL := config.String("SMS_WEBHOOK_URL", "")
	smsWebhookToken := config.String("SMS_WEBHOOK_TOKEN", "")
	var smsSender sms.Sender
	switch smsProvider {
	case "webhook":
		smsSender = sms.NewWebhookSender(smsWebhookURL, smsWebhookToken)
	default:
		smsSender = sms.NewNoopSender()
	}

	// kind and message wording depend on which lifecycle topic the event
	// arrived on.
	handleAppointmentEvent := func(ctx context.Context, msg kafka.Message) error {
		var evt appointmentEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid appointment event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if evt.AppointmentID == "" || evt.ClinicID == "" {
			logger.Error("missing appointment event fields", "topic", msg.Topic)
			return nil
		}

		kind := "confirmation"
		subject := "Appointment confirmed"
		verb := "confirmed"
		if msg.Topic == "clinic.appointment.cancelled.v1" {
			kind = "cancellation"
			subject = "Appointment cancelled"
			verb = "cancelled"
		}

		when := evt.StartTime
		if t, err := time.Parse(time.RFC3339, evt.StartTime); err == nil {
			when = t.UTC().Format("Mon, 02 Jan 2006 15:04 MST")
		}
		body := fmt.Sprintf("Hello %s, your appointment on %s has been %s.", evt.ClientName, when, verb)

		deliver := func(channel string, recipient string, send func() error) error {
			if strings.TrimSpace(recipient) == "" {
				return nil
			}
			status := "sent"
			detail := map[string]any{"sent_at": time.Now().UTC().Format(time.RFC3339)}
			eventType := outbox.EventNotificationSent
			if err := send(); err != nil {
				status = "failed"
				eventType = outbox.EventNotificationFailed
				detail = map[string]any{
					"error_reason": err.Error(),
					"failed_at":    time.Now().UTC().Format(time.RFC3339),
				}
				logger.Error("notification send failed", "err", err, "channel", channel, "recipient", recipient)
			}

			if err := notificationsRepo.Insert(ctx, storage.Notification{
				AppointmentID: evt.AppointmentID,
				ClinicID:      evt.ClinicID,
				Kind:          kind,
				Channel:       channel,
				Recipient:     recipient,
				Payload:       map[string]any{"start_time": evt.StartTime, "end_time": evt.EndTime},
				Status:        status,
			}); err != nil {
				logger.Error("failed to persist notification", "err", err)
				return err
			}
			if err := writeOutboxEvent(ctx, pool, outboxRepo, eventType, evt, kind, channel, detail); err != nil {
				logger.Error("failed to enqueue notification outcome", "err", err)
				return err
			}
			logger.Info("notification processed", "appointment_id", evt.AppointmentID, "kind", kind, "channel", channel, "status", status)
			return nil
		}

		if err := deliver("email", evt.ClientEmail, func() error {
			return emailSender.Send(evt.ClientEmail, subject, body)
		}); err != nil {
			return err
		}
		return deliver("sms", evt.ClientPhone, func() error {
			return smsSender.Send(ctx, evt.ClientPhone, subject+": "+body)
		})
	}

	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	startConsumer := func(topic string) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: groupID,
			Topic:   topic,
		}, handleAppointmentEvent)
		go eventConsumer.Run(ctx)
	}
	startConsumer(config.String("KAFKA_CONSUME_TOPIC", "clinic.appointment.booked.v1"))
	startConsumer(config.String("KAFKA_CONSUME_TOPIC_2", "clinic.appointment.cancelled.v1"))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
