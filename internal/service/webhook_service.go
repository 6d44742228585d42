package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/repository"
)

// WebhookService authenticates and applies voice provider call events.
type WebhookService struct {
	Participants repository.ParticipantRepositoryInterface
	Secret       string
	Now          func() time.Time
}

type WebhookResult struct {
	Event         string `json:"event"`
	ParticipantID string `json:"participant_id,omitempty"`
	Applied       bool   `json:"applied"`
	Note          string `json:"note,omitempty"`
}

func (s *WebhookService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the raw body in constant time. An
// unconfigured secret verifies nothing.
func (s *WebhookService) Verify(body []byte, signature string) error {
	if s.Secret == "" {
		return fmt.Errorf("%w: webhook secret not configured", appErrors.ErrUnauthorized)
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return fmt.Errorf("%w: malformed signature", appErrors.ErrUnauthorized)
	}
	mac := hmac.New(sha256.New, []byte(s.Secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return fmt.Errorf("%w: signature mismatch", appErrors.ErrUnauthorized)
	}
	return nil
}

// HandleProviderEvent verifies and applies one webhook delivery. Nothing is
// read or written before the signature checks out.
func (s *WebhookService) HandleProviderEvent(ctx context.Context, raw []byte, signature string) (*WebhookResult, error) {
	if err := s.Verify(raw, signature); err != nil {
		return nil, err
	}

	ev, err := model.ParseProviderEvent(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErrors.ErrInvalidRequest, err)
	}

	switch e := ev.(type) {
	case *model.CallEndedEvent:
		return s.applyCallEnded(ctx, e)
	case *model.CallStatusEvent:
		p, err := s.resolve(ctx, e.CallID, e.Metadata)
		if err != nil {
			return nil, err
		}
		res := &WebhookResult{Event: e.EventType()}
		if p != nil {
			res.ParticipantID = p.ParticipantID
		}
		return res, s.audit(ctx, e.CallID, p, e.EventType(), e.CallStatus, "", "")
	case *model.TranscriptEvent:
		log.Printf("🗒️ call %s transcript (%s): %s", e.CallID, e.Role, e.Transcript)
		return &WebhookResult{Event: e.EventType()}, nil
	case *model.UnknownEvent:
		log.Printf("ℹ️ ignoring webhook event type %q", e.Type)
		return &WebhookResult{Event: e.Type, Note: "ignored"}, nil
	default:
		return nil, fmt.Errorf("unhandled provider event %T", ev)
	}
}

func (s *WebhookService) applyCallEnded(ctx context.Context, e *model.CallEndedEvent) (*WebhookResult, error) {
	res := &WebhookResult{Event: e.EventType()}

	p, err := s.resolve(ctx, e.CallID, e.Metadata)
	if err != nil {
		return nil, err
	}
	if p == nil {
		res.Note = "unknown call"
		log.Printf("⚠️ call-ended event for unknown call %q", e.CallID)
		return res, s.audit(ctx, e.CallID, nil, e.EventType(), e.CallStatus, e.Transcript, res.Note)
	}
	res.ParticipantID = p.ParticipantID

	switch p.Status {
	case model.StatusCallCompleted:
		res.Note = appErrors.ErrAlreadyProcessed.Error()
		return res, s.audit(ctx, e.CallID, p, e.EventType(), e.CallStatus, e.Transcript, "replay")
	case model.StatusResponded:
		res.Note = "participant already responded"
		return res, s.audit(ctx, e.CallID, p, e.EventType(), e.CallStatus, e.Transcript, res.Note)
	}

	now := s.now()
	result := e.CallStatus
	if result == "" {
		result = e.Type
	}
	patch := model.ParticipantPatch{CallResult: &result}
	if e.CallID != "" {
		patch.CallID = &e.CallID
	}
	if e.Transcript != "" {
		patch.Transcript = &e.Transcript
	}
	if len(e.StructuredData) > 0 && string(e.StructuredData) != "null" {
		patch.StructuredAnswers = e.StructuredData
	}

	won, err := s.Participants.Transition(ctx, p.ParticipantID,
		[]model.Status{model.StatusCallClaimed, model.StatusCallTriggered}, model.StatusCallCompleted, patch, now)
	if err != nil {
		return nil, fmt.Errorf("complete call for participant %s: %w", p.ParticipantID, err)
	}
	res.Applied = won
	note := ""
	if !won {
		note = "status changed concurrently"
		res.Note = note
	} else {
		log.Printf("✅ call %s completed for participant %s", e.CallID, p.ParticipantID)
	}
	return res, s.audit(ctx, e.CallID, p, e.EventType(), e.CallStatus, e.Transcript, note)
}

// resolve maps a call id to its participant, falling back to the metadata the
// call was placed with. A nil participant means the call is unknown.
func (s *WebhookService) resolve(ctx context.Context, callID string, meta model.CallMetadata) (*model.Participant, error) {
	if callID != "" {
		p, err := s.Participants.FindByCallID(ctx, callID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	if meta.ParticipantID == "" || meta.SurveyID == "" || meta.BatchID == "" {
		return nil, nil
	}
	p, err := s.Participants.GetParticipant(ctx, meta.SurveyID, meta.BatchID, meta.ParticipantID)
	if errors.Is(err, appErrors.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *WebhookService) audit(ctx context.Context, callID string, p *model.Participant, eventType, callStatus, transcript, note string) error {
	ev := &model.CallEvent{
		ID:         uuid.NewString(),
		CallID:     callID,
		EventType:  eventType,
		CallStatus: callStatus,
		Transcript: transcript,
		Note:       note,
		ReceivedAt: s.now(),
	}
	if p != nil {
		ev.ParticipantID = p.ParticipantID
	}
	if err := s.Participants.AppendCallEvent(ctx, ev); err != nil {
		return fmt.Errorf("append call event: %w", err)
	}
	return nil
}
