// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/survey-escalation/internal/config"
	"github.com/unclebandit/survey-escalation/internal/controller"
	"github.com/unclebandit/survey-escalation/internal/handler"
	"github.com/unclebandit/survey-escalation/internal/provider"
	"github.com/unclebandit/survey-escalation/internal/queue"
	"github.com/unclebandit/survey-escalation/internal/repository"
	"github.com/unclebandit/survey-escalation/internal/service"
	"github.com/unclebandit/survey-escalation/internal/token"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repository.OpenStore(cfg.DBDriver, cfg.DSN())
	if err != nil {
		log.Fatal("failed to open store:", err)
	}
	defer closeStore()

	policy := service.NewPolicyHolder(cfg.Policy)
	tokens := token.NewSigner(cfg.TokenSecret, cfg.Policy.TokenTTL)
	links := &service.LinkBuilder{BaseURL: cfg.PublicBaseURL, Tokens: tokens}

	// Queue: RabbitMQ when configured (emails are sent by cmd/worker),
	// otherwise an in-process queue with the email worker subscribed here.
	var q queue.Queue
	if cfg.AMQPURL != "" {
		aq, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatal("failed to connect to RabbitMQ:", err)
		}
		q = aq
		log.Println("📨 Publishing survey emails to RabbitMQ")
	} else {
		mq := queue.NewInMemoryQueue()
		worker := &service.EmailWorker{
			Participants: store,
			Surveys:      store,
			Links:        links,
			Mailer:       provider.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom),
		}
		if err := mq.Subscribe(queue.TopicSurveyEmails, worker.Handle); err != nil {
			log.Fatal("failed to subscribe email worker:", err)
		}
		q = mq
		log.Println("📨 Sending survey emails in-process")
	}
	defer q.Close()

	if cfg.VoiceAPIKey == "" {
		log.Println("⚠️ VOICE_API_KEY is empty, voice calls will be rejected by the provider")
	}
	voice := provider.NewVoiceClient(cfg.VoiceAPIURL, cfg.VoiceAPIKey, cfg.VoicePhoneNumberID, cfg.VoiceName, cfg.Policy.ProviderTimeout, nil)

	surveys := &service.SurveyService{Surveys: store}
	batches := &service.BatchService{Participants: store, Surveys: store, Queue: q, Policy: policy}
	reminders := &service.ReminderService{Participants: store, Surveys: store, Queue: q, Policy: policy}
	responses := &service.ResponseService{Participants: store, Tokens: tokens}
	webhooks := &service.WebhookService{Participants: store, Secret: cfg.WebhookSecret}
	scheduler := &service.Scheduler{
		Participants: store,
		Surveys:      store,
		Dispatcher:   &service.Dispatcher{Participants: store, Voice: voice},
		Reminders:    reminders,
		Policy:       policy,
	}

	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.PolicyFile != "" {
		if err := config.WatchPolicy(ctx, cfg.PolicyFile, cfg.Policy, scheduler.UpdatePolicy); err != nil {
			log.Printf("⚠️ policy hot reload disabled: %v", err)
		}
	}

	if cfg.OperatorKeyHash == "" {
		log.Println("⚠️ OPERATOR_KEY_HASH is empty, operator endpoints are unauthenticated")
	}

	router := handler.NewRouter(handler.Routes{
		Surveys:         &controller.SurveyController{Surveys: surveys, Batches: batches, Reminders: reminders},
		Submissions:     &controller.SubmissionController{Responses: responses},
		Escalation:      &controller.EscalationController{Scheduler: scheduler, Store: store},
		Webhook:         &handler.WebhookHandler{Webhooks: webhooks},
		OperatorKeyHash: cfg.OperatorKeyHash,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxTimeout)
	}()

	log.Printf("🚀 Server running on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	log.Println("👋 Server stopped")
}
