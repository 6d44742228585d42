package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/provider"
	"github.com/unclebandit/survey-escalation/internal/service"
)

// MockMailer stores sent emails
type MockMailer struct {
	mu   sync.Mutex
	sent []provider.Email
}

func (m *MockMailer) Send(ctx context.Context, msg provider.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func newEmailWorker(env *testEnv) (*service.EmailWorker, *MockMailer) {
	mailer := &MockMailer{}
	return &service.EmailWorker{
		Participants: env.store,
		Surveys:      env.store,
		Links:        &service.LinkBuilder{BaseURL: "https://surveys.example.com", Tokens: env.signer},
		Mailer:       mailer,
	}, mailer
}

func TestEmailWorkerSendsInvitation(t *testing.T) {
	env := newTestEnv(t)
	env.sendBatch(t, 1)
	worker, mailer := newEmailWorker(env)

	body, _ := json.Marshal(env.queue.Jobs()[0])
	if err := worker.Handle(body); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if msg.To != "user0@example.com" || !strings.Contains(msg.Subject, "Onboarding feedback") {
		t.Errorf("unexpected email %+v", msg)
	}
	if !strings.Contains(msg.Body, "https://surveys.example.com/survey/"+testSurveyID+"?") {
		t.Errorf("body has no personalized link:\n%s", msg.Body)
	}
}

func TestEmailWorkerSkipsRemindersForResponders(t *testing.T) {
	env := newTestEnv(t)
	p := env.sendBatch(t, 1).Participants[0]
	env.submit(t, p, `{"q1":"done"}`)
	worker, mailer := newEmailWorker(env)

	job := service.EmailJob{SurveyID: p.SurveyID, BatchID: p.BatchID, ParticipantID: p.ParticipantID, Reminder: model.ReminderClosing}
	if err := worker.Process(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("responder received a reminder")
	}
}

func TestEmailWorkerDropsMalformedJob(t *testing.T) {
	env := newTestEnv(t)
	worker, mailer := newEmailWorker(env)
	if err := worker.Handle([]byte("{")); err != nil {
		t.Errorf("malformed jobs are dropped, got %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Error("nothing should be sent")
	}
}

func TestRenderEmail(t *testing.T) {
	s := &model.Survey{Title: "Pulse"}
	subject, body := service.RenderEmail(model.ReminderDayBefore, s, "https://x/y")
	if subject != "Closing tomorrow: Pulse" || !strings.HasSuffix(body, "https://x/y") {
		t.Errorf("unexpected render %q / %q", subject, body)
	}
	if got := service.RenderTemplate("Hi {name}", map[string]string{"name": "Ann"}); got != "Hi Ann" {
		t.Errorf("RenderTemplate = %q", got)
	}
}
