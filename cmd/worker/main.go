// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/unclebandit/survey-escalation/internal/config"
	"github.com/unclebandit/survey-escalation/internal/provider"
	"github.com/unclebandit/survey-escalation/internal/queue"
	"github.com/unclebandit/survey-escalation/internal/repository"
	"github.com/unclebandit/survey-escalation/internal/service"
	"github.com/unclebandit/survey-escalation/internal/token"
)

func main() {
	cfg := config.Load()
	if cfg.AMQPURL == "" {
		log.Fatal("AMQP_URL is required for the email worker")
	}
	if cfg.DBDriver == "memory" {
		log.Fatal("the email worker needs a shared database, DB_DRIVER=memory is not supported")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repository.OpenStore(cfg.DBDriver, cfg.DSN())
	if err != nil {
		log.Fatal("failed to open store:", err)
	}
	defer closeStore()

	q, err := queue.DialAMQP(cfg.AMQPURL)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ:", err)
	}
	defer q.Close()

	worker := newEmailWorker(cfg, store)
	if err := subscribe(q, worker); err != nil {
		log.Fatal("failed to register consumer:", err)
	}

	log.Println("Worker running, waiting for messages...")
	<-ctx.Done()
	log.Println("👋 Worker stopped")
}

func newEmailWorker(cfg config.Config, store repository.Store) *service.EmailWorker {
	tokens := token.NewSigner(cfg.TokenSecret, cfg.Policy.TokenTTL)
	return &service.EmailWorker{
		Participants: store,
		Surveys:      store,
		Links:        &service.LinkBuilder{BaseURL: cfg.PublicBaseURL, Tokens: tokens},
		Mailer:       provider.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom),
	}
}

func subscribe(q queue.Queue, w *service.EmailWorker) error {
	return q.Subscribe(queue.TopicSurveyEmails, w.Handle)
}
