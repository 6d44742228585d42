package service_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/service"
)

func TestCreateBatch(t *testing.T) {
	env := newTestEnv(t)
	res := env.sendBatch(t, 3)

	if res.Batch.BatchID == "" || res.Batch.SurveyID != testSurveyID {
		t.Fatalf("unexpected batch %+v", res.Batch)
	}
	if !res.Batch.Escalation.Enabled || res.Batch.Escalation.Delay != 48*time.Hour {
		t.Errorf("escalation should default from the survey: %+v", res.Batch.Escalation)
	}
	seen := map[string]bool{}
	for _, p := range res.Participants {
		if p.Status != model.StatusSent || p.BatchID != res.Batch.BatchID || !p.SentAt.Equal(epoch) {
			t.Errorf("unexpected participant %+v", p)
		}
		if seen[p.ParticipantID] {
			t.Errorf("duplicate participant id %s", p.ParticipantID)
		}
		seen[p.ParticipantID] = true
	}

	jobs := env.queue.Jobs()
	if res.EmailsQueued != 3 || len(jobs) != 3 {
		t.Fatalf("expected 3 invitations, got %d/%d", res.EmailsQueued, len(jobs))
	}
	for _, j := range jobs {
		if j.Reminder != model.ReminderOpening || j.BatchID != res.Batch.BatchID {
			t.Errorf("unexpected job %+v", j)
		}
	}
}

func TestCreateBatchReinviteIsIndependent(t *testing.T) {
	env := newTestEnv(t)
	first := env.sendBatch(t, 1)
	second := env.sendBatch(t, 1)

	if first.Batch.BatchID == second.Batch.BatchID || first.Participants[0].ParticipantID == second.Participants[0].ParticipantID {
		t.Fatal("re-inviting must create a new batch and participant")
	}
	env.submit(t, first.Participants[0], `{"q1":"yes"}`)
	if got := env.participant(t, second.Participants[0]); got.Status != model.StatusSent {
		t.Errorf("response in one batch leaked into another: %s", got.Status)
	}
}

func TestCreateBatchOverrides(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.batches.CreateBatch(context.Background(), service.CreateBatchRequest{
		SurveyID:   testSurveyID,
		Recipients: []model.Recipient{{Email: "a@example.com"}},
		Escalation: &model.EscalationConfig{Enabled: false, Delay: time.Hour},
		Channels:   &model.ChannelFlags{Email: false, Voice: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Batch.Escalation.Enabled || res.Batch.Escalation.Delay != time.Hour {
		t.Errorf("overrides ignored: %+v", res.Batch.Escalation)
	}
	if res.EmailsQueued != 0 || len(env.queue.Jobs()) != 0 {
		t.Error("email channel disabled, nothing should be queued")
	}
}

func TestCreateBatchValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []service.CreateBatchRequest{
		{SurveyID: "", Recipients: []model.Recipient{{Email: "a@example.com"}}},
		{SurveyID: testSurveyID},
		{SurveyID: testSurveyID, Recipients: []model.Recipient{{Phone: "+1555"}}},
	}
	for _, c := range cases {
		if _, err := env.batches.CreateBatch(ctx, c); !errors.Is(err, appErrors.ErrInvalidRequest) {
			t.Errorf("%+v: expected ErrInvalidRequest, got %v", c, err)
		}
	}

	_, err := env.batches.CreateBatch(ctx, service.CreateBatchRequest{SurveyID: "missing", Recipients: []model.Recipient{{Email: "a@example.com"}}})
	if !errors.Is(err, appErrors.ErrNotFound) {
		t.Errorf("unknown survey: got %v", err)
	}
}

func TestListParticipantsScopes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.sendBatch(t, 2)
	env.sendBatch(t, 3)

	all, err := env.batches.ListParticipants(ctx, testSurveyID, "")
	if err != nil || len(all) != 5 {
		t.Fatalf("all batches: %d, %v", len(all), err)
	}
	one, err := env.batches.ListParticipants(ctx, testSurveyID, first.Batch.BatchID)
	if err != nil || len(one) != 2 {
		t.Fatalf("one batch: %d, %v", len(one), err)
	}
	if _, err := env.batches.ListParticipants(ctx, testSurveyID, "missing"); !errors.Is(err, appErrors.ErrNotFound) {
		t.Errorf("unknown batch: got %v", err)
	}
}

func TestLinkBuilder(t *testing.T) {
	env := newTestEnv(t)
	p := env.sendBatch(t, 1).Participants[0]
	links := &service.LinkBuilder{BaseURL: "https://surveys.example.com/", Tokens: env.signer}

	link, err := links.Link(p)
	if err != nil {
		t.Fatal(err)
	}
	prefix := "https://surveys.example.com/survey/" + testSurveyID + "?"
	if !strings.HasPrefix(link, prefix) {
		t.Fatalf("link %s does not start with %s", link, prefix)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatal(err)
	}
	if u.Query().Get("participantId") != p.ParticipantID {
		t.Errorf("participantId = %q", u.Query().Get("participantId"))
	}
	ack, err := env.responses.RecordSubmission(context.Background(), testSurveyID, u.Query().Get("t"), []byte(`{"q1":"via link"}`))
	if err != nil || ack.ParticipantID != p.ParticipantID {
		t.Errorf("link token should resolve to the participant: %+v %v", ack, err)
	}
}
