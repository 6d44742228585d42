package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/unclebandit/survey-escalation/internal/config"
	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/provider"
	"github.com/unclebandit/survey-escalation/internal/repository"
	"github.com/unclebandit/survey-escalation/internal/service"
	"github.com/unclebandit/survey-escalation/internal/token"
)

const (
	testSurveyID = "s1"
	testSecret   = "webhook-secret"
)

var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeClock is a settable time source shared by every component under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// MockVoice records every call request and answers with a fixed result.
type MockVoice struct {
	mu     sync.Mutex
	calls  []provider.CallRequest
	err    error
	onCall func(req provider.CallRequest)
}

func (m *MockVoice) PlaceCall(ctx context.Context, req provider.CallRequest) (*provider.CallResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	err := m.err
	m.mu.Unlock()

	if m.onCall != nil {
		m.onCall(req)
	}
	if err != nil {
		return nil, err
	}
	return &provider.CallResult{CallID: "call-" + req.ParticipantID, Status: "queued"}, nil
}

func (m *MockVoice) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockVoice) CallsFor(participantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.ParticipantID == participantID {
			n++
		}
	}
	return n
}

// MockQueue records published jobs without delivering them.
type MockQueue struct {
	mu   sync.Mutex
	jobs []service.EmailJob
	err  error
}

func (q *MockQueue) Publish(topic string, payload any) error {
	if q.err != nil {
		return q.err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var job service.EmailJob
	if err := json.Unmarshal(b, &job); err != nil {
		return err
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	return nil
}

func (q *MockQueue) Subscribe(topic string, handler func(body []byte) error) error { return nil }
func (q *MockQueue) Close() error                                                  { return nil }

func (q *MockQueue) Jobs() []service.EmailJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]service.EmailJob(nil), q.jobs...)
}

type testEnv struct {
	store      *repository.MemoryStore
	clock      *fakeClock
	voice      *MockVoice
	queue      *MockQueue
	policy     *service.PolicyHolder
	signer     *token.Signer
	batches    *service.BatchService
	responses  *service.ResponseService
	dispatcher *service.Dispatcher
	reminders  *service.ReminderService
	scheduler  *service.Scheduler
	webhooks   *service.WebhookService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &fakeClock{t: epoch}
	store := repository.NewMemoryStore()
	policy := service.NewPolicyHolder(config.DefaultPolicy())
	signer := token.NewSigner("token-secret", 24*time.Hour).WithClock(clock.Now)
	voice := &MockVoice{}
	q := &MockQueue{}

	err := store.SaveSurvey(context.Background(), &model.Survey{
		SurveyID:          testSurveyID,
		Title:             "Onboarding feedback",
		Questions:         []model.Question{{ID: "q1", Text: "How was setup?"}},
		StartDate:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		EscalationEnabled: true,
		EscalationDelay:   48 * time.Hour,
		CreatedAt:         epoch,
	})
	if err != nil {
		t.Fatalf("save survey: %v", err)
	}

	env := &testEnv{store: store, clock: clock, voice: voice, queue: q, policy: policy, signer: signer}
	env.batches = &service.BatchService{Participants: store, Surveys: store, Queue: q, Policy: policy, Now: clock.Now}
	env.responses = &service.ResponseService{Participants: store, Tokens: signer, Now: clock.Now}
	env.dispatcher = &service.Dispatcher{Participants: store, Voice: voice, Now: clock.Now}
	env.reminders = &service.ReminderService{Participants: store, Surveys: store, Queue: q, Policy: policy}
	env.scheduler = &service.Scheduler{
		Participants: store,
		Surveys:      store,
		Dispatcher:   env.dispatcher,
		Reminders:    env.reminders,
		Policy:       policy,
		Now:          clock.Now,
	}
	env.webhooks = &service.WebhookService{Participants: store, Secret: testSecret, Now: clock.Now}
	return env
}

// sendBatch creates a batch of n recipients that all have a phone number.
func (e *testEnv) sendBatch(t *testing.T, n int) *service.CreateBatchResult {
	t.Helper()
	recipients := make([]model.Recipient, n)
	for i := range recipients {
		recipients[i] = model.Recipient{
			Email: fmt.Sprintf("user%d@example.com", i),
			Phone: fmt.Sprintf("+1555000%04d", i),
		}
	}
	res, err := e.batches.CreateBatch(context.Background(), service.CreateBatchRequest{SurveyID: testSurveyID, Recipients: recipients})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	return res
}

func (e *testEnv) participant(t *testing.T, p *model.Participant) *model.Participant {
	t.Helper()
	got, err := e.store.GetParticipant(context.Background(), p.SurveyID, p.BatchID, p.ParticipantID)
	if err != nil {
		t.Fatalf("GetParticipant: %v", err)
	}
	return got
}

func (e *testEnv) submit(t *testing.T, p *model.Participant, answers string) (*service.SubmissionAck, error) {
	t.Helper()
	tok, err := e.signer.Sign(p.SurveyID, p.BatchID, p.ParticipantID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return e.responses.RecordSubmission(context.Background(), p.SurveyID, tok, json.RawMessage(answers))
}
