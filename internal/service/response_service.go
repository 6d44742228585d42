package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/repository"
	"github.com/unclebandit/survey-escalation/internal/token"
)

// ResponseService records survey submissions. Marking a participant
// RESPONDED is what stops any further escalation for it.
type ResponseService struct {
	Participants repository.ParticipantRepositoryInterface
	Tokens       *token.Signer
	Now          func() time.Time
}

type SubmissionAck struct {
	ParticipantID string       `json:"participant_id"`
	Status        model.Status `json:"status"`
	Duplicate     bool         `json:"duplicate"`
}

// RecordSubmission resolves the token to exactly one participant, stores the
// answers (last write wins) and applies RESPONDED unless already there.
// surveyID may be empty; when set it must match the token.
func (s *ResponseService) RecordSubmission(ctx context.Context, surveyID, rawToken string, answers json.RawMessage) (*SubmissionAck, error) {
	claims, err := s.Tokens.Parse(rawToken)
	if err != nil {
		return nil, err
	}
	if surveyID != "" && surveyID != claims.SurveyID {
		return nil, fmt.Errorf("%w: token issued for another survey", appErrors.ErrInvalidToken)
	}
	if len(answers) == 0 || string(answers) == "null" {
		return nil, fmt.Errorf("%w: answers are required", appErrors.ErrInvalidRequest)
	}

	p, err := s.Participants.GetParticipant(ctx, claims.SurveyID, claims.BatchID, claims.ParticipantID())
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", appErrors.ErrInvalidToken, err)
		}
		return nil, err
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}

	if err := s.Participants.UpdateAnswers(ctx, p.ParticipantID, answers, now); err != nil {
		return nil, fmt.Errorf("store answers: %w", err)
	}

	won, err := s.Participants.Transition(ctx, p.ParticipantID, model.RespondableFrom(), model.StatusResponded,
		model.ParticipantPatch{RespondedAt: &now}, now)
	if err != nil {
		return nil, fmt.Errorf("mark responded: %w", err)
	}
	if !won {
		return &SubmissionAck{ParticipantID: p.ParticipantID, Status: model.StatusResponded, Duplicate: true}, nil
	}
	if p.Status != model.StatusSent {
		log.Printf("✅ participant %s responded while in %s; escalation stopped", p.ParticipantID, p.Status)
	}
	return &SubmissionAck{ParticipantID: p.ParticipantID, Status: model.StatusResponded}, nil
}
