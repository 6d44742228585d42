package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
)

func testCallRequest() CallRequest {
	return CallRequest{
		SurveyID:      "s1",
		BatchID:       "b1",
		ParticipantID: "p1",
		Phone:         "+15550001",
		SurveyTitle:   "Onboarding",
		Questions:     []model.Question{{ID: "q1", Text: "How was setup?"}},
	}
}

func TestPlaceCallSendsRequest(t *testing.T) {
	var got callPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/call" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer auth, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Idempotency-Key") != "p1" {
			t.Errorf("idempotency key = %q", r.Header.Get("Idempotency-Key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"call-123","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewVoiceClient(srv.URL+"/", "key", "pn1", "", time.Second, srv.Client())
	res, err := c.PlaceCall(context.Background(), testCallRequest())
	if err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	if res.CallID != "call-123" {
		t.Errorf("call id = %q", res.CallID)
	}
	if got.Customer.Number != "+15550001" || got.PhoneNumberID != "pn1" {
		t.Errorf("unexpected payload %+v", got)
	}
	if got.Metadata.ParticipantID != "p1" || got.Metadata.BatchID != "b1" || got.Metadata.SurveyID != "s1" {
		t.Errorf("metadata not propagated: %+v", got.Metadata)
	}
	if !strings.Contains(got.Assistant.Model.Messages[0].Content, "How was setup?") {
		t.Errorf("questions missing from prompt")
	}
}

func TestPlaceCallRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad number", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewVoiceClient(srv.URL, "key", "", "", time.Second, nil)
	_, err := c.PlaceCall(context.Background(), testCallRequest())

	var rejected *appErrors.ErrProviderRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
	if rejected.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", rejected.StatusCode)
	}
}

func TestPlaceCallTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewVoiceClient(srv.URL, "key", "", "", 50*time.Millisecond, nil)
	_, err := c.PlaceCall(context.Background(), testCallRequest())
	if !errors.Is(err, appErrors.ErrProviderTimeout) {
		t.Fatalf("expected ErrProviderTimeout, got %v", err)
	}
	if !appErrors.IsProviderFailure(err) {
		t.Error("timeout should count as a provider failure")
	}
}

func TestPlaceCallMissingCallID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewVoiceClient(srv.URL, "key", "", "", time.Second, nil)
	if _, err := c.PlaceCall(context.Background(), testCallRequest()); err == nil {
		t.Fatal("expected error for empty call id")
	}
}
