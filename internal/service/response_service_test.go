package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/token"
)

func TestRecordSubmission(t *testing.T) {
	env := newTestEnv(t)
	p := env.sendBatch(t, 1).Participants[0]

	ack, err := env.submit(t, p, `{"q1":"fine"}`)
	if err != nil {
		t.Fatalf("RecordSubmission: %v", err)
	}
	if ack.Duplicate || ack.Status != model.StatusResponded {
		t.Errorf("unexpected ack %+v", ack)
	}
	got := env.participant(t, p)
	if got.Status != model.StatusResponded || got.RespondedAt == nil || string(got.Answers) != `{"q1":"fine"}` {
		t.Errorf("unexpected participant %+v", got)
	}
}

func TestDuplicateSubmissionLastWriteWins(t *testing.T) {
	env := newTestEnv(t)
	p := env.sendBatch(t, 1).Participants[0]

	env.submit(t, p, `{"q1":"first"}`)
	first := env.participant(t, p)

	env.clock.Advance(time.Minute)
	ack, err := env.submit(t, p, `{"q1":"second"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !ack.Duplicate {
		t.Error("second submission should be reported as duplicate")
	}
	got := env.participant(t, p)
	if string(got.Answers) != `{"q1":"second"}` {
		t.Errorf("answers = %s", got.Answers)
	}
	if got.Status != model.StatusResponded || !got.RespondedAt.Equal(*first.RespondedAt) {
		t.Errorf("status or responded_at changed: %+v", got)
	}
}

func TestDuplicateSubmissionRacingTick(t *testing.T) {
	env := newTestEnv(t)
	batch := env.sendBatch(t, 5)
	for _, p := range batch.Participants {
		env.submit(t, p, `{"q1":"yes"}`)
	}
	env.clock.Advance(49 * time.Hour)

	var wg sync.WaitGroup
	for _, p := range batch.Participants {
		wg.Add(1)
		go func(p *model.Participant) {
			defer wg.Done()
			env.submit(t, p, `{"q1":"again"}`)
		}(p)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		env.scheduler.ProcessDueBatches(context.Background())
	}()
	wg.Wait()

	if env.voice.Count() != 0 {
		t.Fatalf("responders were called %d times", env.voice.Count())
	}
	for _, p := range batch.Participants {
		if got := env.participant(t, p); got.Status != model.StatusResponded {
			t.Errorf("participant %s regressed to %s", p.ParticipantID, got.Status)
		}
	}
}

func TestSubmissionAfterCallWins(t *testing.T) {
	env := newTestEnv(t)
	p := env.sendBatch(t, 1).Participants[0]
	env.clock.Advance(49 * time.Hour)
	env.scheduler.ProcessDueBatches(context.Background())

	if _, err := env.submit(t, p, `{"q1":"late"}`); err != nil {
		t.Fatal(err)
	}
	got := env.participant(t, p)
	if got.Status != model.StatusResponded || got.CallID == "" {
		t.Errorf("response after call should win and keep call fields: %+v", got)
	}
}

func TestRecordSubmissionInvalidToken(t *testing.T) {
	env := newTestEnv(t)
	p := env.sendBatch(t, 1).Participants[0]
	ctx := context.Background()
	answers := json.RawMessage(`{"q1":"x"}`)

	if _, err := env.responses.RecordSubmission(ctx, "", "not-a-token", answers); !errors.Is(err, appErrors.ErrInvalidToken) {
		t.Errorf("garbage token: got %v", err)
	}

	forged, _ := token.NewSigner("other-secret", time.Hour).Sign(p.SurveyID, p.BatchID, p.ParticipantID)
	if _, err := env.responses.RecordSubmission(ctx, "", forged, answers); !errors.Is(err, appErrors.ErrInvalidToken) {
		t.Errorf("forged token: got %v", err)
	}

	unknown, _ := env.signer.Sign(p.SurveyID, p.BatchID, "ghost")
	if _, err := env.responses.RecordSubmission(ctx, "", unknown, answers); !errors.Is(err, appErrors.ErrInvalidToken) {
		t.Errorf("unknown participant: got %v", err)
	}

	valid, _ := env.signer.Sign(p.SurveyID, p.BatchID, p.ParticipantID)
	if _, err := env.responses.RecordSubmission(ctx, "other-survey", valid, answers); !errors.Is(err, appErrors.ErrInvalidToken) {
		t.Errorf("survey mismatch: got %v", err)
	}

	if got := env.participant(t, p); got.Status != model.StatusSent || len(got.Answers) != 0 {
		t.Errorf("rejected submissions must not mutate state: %+v", got)
	}
}
