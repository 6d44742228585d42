package controller_test

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/survey-escalation/internal/config"
	"github.com/unclebandit/survey-escalation/internal/controller"
	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/queue"
	"github.com/unclebandit/survey-escalation/internal/repository"
	"github.com/unclebandit/survey-escalation/internal/service"
)

// MockQueue swallows published jobs
type MockQueue struct{}

func (MockQueue) Publish(topic string, payload any) error                       { return nil }
func (MockQueue) Subscribe(topic string, handler func(body []byte) error) error { return nil }
func (MockQueue) Close() error                                                  { return nil }

var _ queue.Queue = MockQueue{}

func newRouter() chi.Router {
	store := repository.NewMemoryStore()
	policy := service.NewPolicyHolder(config.DefaultPolicy())
	surveys := &controller.SurveyController{
		Surveys:   &service.SurveyService{Surveys: store},
		Batches:   &service.BatchService{Participants: store, Surveys: store, Queue: MockQueue{}, Policy: policy},
		Reminders: &service.ReminderService{Participants: store, Surveys: store, Queue: MockQueue{}, Policy: policy},
	}
	escalation := &controller.EscalationController{
		Scheduler: &service.Scheduler{Participants: store, Surveys: store, Dispatcher: &service.Dispatcher{Participants: store}, Policy: policy},
		Store:     store,
	}

	r := chi.NewRouter()
	r.Post("/surveys", surveys.CreateSurvey)
	r.Post("/surveys/{surveyId}/send", surveys.SendSurvey)
	r.Get("/surveys/{surveyId}/participants", surveys.ListParticipants)
	r.Post("/trigger-escalation", escalation.TriggerEscalation)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{appErrors.ErrInvalidToken, http.StatusBadRequest},
		{fmt.Errorf("%w: nope", appErrors.ErrInvalidRequest), http.StatusBadRequest},
		{appErrors.ErrUnauthorized, http.StatusUnauthorized},
		{appErrors.NewBatchNotFound("s", "b"), http.StatusNotFound},
		{appErrors.NewSurveyNotFound("s"), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := controller.StatusFor(c.err); got != c.want {
			t.Errorf("StatusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := controller.ParseDate("2024-01-04")
	if err != nil || !d.Equal(time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("calendar date: %v %v", d, err)
	}
	if _, err := controller.ParseDate("2024-01-04T10:00:00+02:00"); err != nil {
		t.Errorf("rfc3339: %v", err)
	}
	if _, err := controller.ParseDate("04/01/2024"); !errors.Is(err, appErrors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCreateSurveyValidation(t *testing.T) {
	r := newRouter()

	cases := map[string]string{
		"bad json":      `{`,
		"bad date":      `{"title":"T","start_date":"yesterday","end_date":"2024-01-02"}`,
		"end first":     `{"title":"T","start_date":"2024-01-05","end_date":"2024-01-02"}`,
		"no title":      `{"start_date":"2024-01-01","end_date":"2024-01-02"}`,
		"bad delay":     `{"title":"T","start_date":"2024-01-01","end_date":"2024-01-02","escalation_delay":"soon"}`,
		"bad time zone": `{"title":"T","start_date":"2024-01-01","end_date":"2024-01-02","timezone":"Mars/Olympus"}`,
	}
	for name, body := range cases {
		if w := serve(r, http.MethodPost, "/surveys", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d (%s)", name, w.Code, w.Body.String())
		}
	}

	w := serve(r, http.MethodPost, "/surveys", `{"survey_id":"s1","title":"T","start_date":"2024-01-01","end_date":"2024-01-02"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestSendSurvey(t *testing.T) {
	r := newRouter()
	serve(r, http.MethodPost, "/surveys", `{"survey_id":"s1","title":"T","start_date":"2024-01-01","end_date":"2024-01-02"}`)

	if w := serve(r, http.MethodPost, "/surveys/missing/send", `{"recipients":[{"email":"a@example.com"}]}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown survey: expected 404, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/surveys/s1/send", `{"recipients":[]}`); w.Code != http.StatusBadRequest {
		t.Errorf("no recipients: expected 400, got %d", w.Code)
	}

	w := serve(r, http.MethodPost, "/surveys/s1/send", `{"recipients":[{"email":"a@example.com"}],"escalation":{"enabled":true,"delay":"1h"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"SENT"`) {
		t.Errorf("response should list SENT participants: %s", w.Body.String())
	}

	if w := serve(r, http.MethodGet, "/surveys/s1/participants", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"SENT":1`) {
		t.Errorf("participants listing: %d %s", w.Code, w.Body.String())
	}
}

func TestTriggerEscalationEmptyBody(t *testing.T) {
	r := newRouter()
	w := serve(r, http.MethodPost, "/trigger-escalation", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"successful":0`) {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	if w := serve(r, http.MethodPost, "/trigger-escalation", `{"surveyId":"nope"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown survey: expected 404, got %d", w.Code)
	}
}
