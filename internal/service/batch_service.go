package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/queue"
	"github.com/unclebandit/survey-escalation/internal/repository"
)

// EmailJob is the payload published on the survey_emails topic.
type EmailJob struct {
	SurveyID      string             `json:"survey_id"`
	BatchID       string             `json:"batch_id"`
	ParticipantID string             `json:"participant_id"`
	Reminder      model.ReminderType `json:"reminder"`
}

// BatchService creates isolated send batches and answers participant queries.
type BatchService struct {
	Participants repository.ParticipantRepositoryInterface
	Surveys      repository.SurveyRepositoryInterface
	Queue        queue.Queue
	Policy       *PolicyHolder
	Now          func() time.Time
}

type CreateBatchRequest struct {
	SurveyID   string                  `json:"survey_id"`
	Recipients []model.Recipient       `json:"recipients"`
	Escalation *model.EscalationConfig `json:"escalation,omitempty"`
	Channels   *model.ChannelFlags     `json:"channels,omitempty"`
}

// Result struct for CreateBatch
type CreateBatchResult struct {
	Batch        *model.Batch         `json:"batch"`
	Participants []*model.Participant `json:"participants"`
	EmailsQueued int                  `json:"emails_queued"`
}

func (s *BatchService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// CreateBatch allocates a fresh batch with one SENT participant per recipient
// and queues the opening invitation for each of them.
func (s *BatchService) CreateBatch(ctx context.Context, req CreateBatchRequest) (*CreateBatchResult, error) {
	if strings.TrimSpace(req.SurveyID) == "" {
		return nil, fmt.Errorf("%w: survey_id is required", appErrors.ErrInvalidRequest)
	}
	if len(req.Recipients) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", appErrors.ErrInvalidRequest)
	}
	for i, r := range req.Recipients {
		if strings.TrimSpace(r.Email) == "" {
			return nil, fmt.Errorf("%w: recipient %d has no email", appErrors.ErrInvalidRequest, i)
		}
	}

	survey, err := s.Surveys.GetSurvey(ctx, req.SurveyID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	batch := &model.Batch{
		BatchID:   uuid.NewString(),
		SurveyID:  survey.SurveyID,
		CreatedAt: now,
		Escalation: model.EscalationConfig{
			Enabled: survey.EscalationEnabled,
			Delay:   survey.EscalationDelay,
		},
		Channels: model.ChannelFlags{Email: true, Voice: true},
	}
	if batch.Escalation.Delay <= 0 {
		batch.Escalation.Delay = s.Policy.Get().DefaultEscalationDelay
	}
	if req.Escalation != nil {
		batch.Escalation.Enabled = req.Escalation.Enabled
		if req.Escalation.Delay > 0 {
			batch.Escalation.Delay = req.Escalation.Delay
		}
	}
	if req.Channels != nil {
		batch.Channels = *req.Channels
	}

	participants := make([]*model.Participant, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		participants = append(participants, &model.Participant{
			ParticipantID: uuid.NewString(),
			BatchID:       batch.BatchID,
			SurveyID:      batch.SurveyID,
			Email:         strings.TrimSpace(r.Email),
			Phone:         strings.TrimSpace(r.Phone),
			Status:        model.StatusSent,
			SentAt:        now,
			UpdatedAt:     now,
		})
	}

	if err := s.Participants.CreateBatch(ctx, batch, participants); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	result := &CreateBatchResult{Batch: batch, Participants: participants}
	if !batch.Channels.Email {
		return result, nil
	}

	for _, p := range participants {
		job := EmailJob{SurveyID: p.SurveyID, BatchID: p.BatchID, ParticipantID: p.ParticipantID, Reminder: model.ReminderOpening}
		if err := s.Queue.Publish(queue.TopicSurveyEmails, job); err != nil {
			log.Println("⚠️ failed to enqueue invitation for participant", p.ParticipantID, ":", err)
			continue
		}
		if _, err := s.Participants.MarkReminderSent(ctx, p.ParticipantID, model.ReminderOpening, now); err != nil {
			log.Println("⚠️ failed to record invitation marker:", err)
		}
		result.EmailsQueued++
	}
	return result, nil
}

func (s *BatchService) GetBatch(ctx context.Context, surveyID, batchID string) (*model.Batch, error) {
	return s.Participants.GetBatch(ctx, surveyID, batchID)
}

func (s *BatchService) GetParticipant(ctx context.Context, surveyID, batchID, participantID string) (*model.Participant, error) {
	return s.Participants.GetParticipant(ctx, surveyID, batchID, participantID)
}

// ListParticipants is for display only. Omitting batchID spans every batch
// of the survey; escalation never goes through here.
func (s *BatchService) ListParticipants(ctx context.Context, surveyID, batchID string) ([]*model.Participant, error) {
	if _, err := s.Surveys.GetSurvey(ctx, surveyID); err != nil {
		return nil, err
	}
	if batchID != "" {
		if _, err := s.Participants.GetBatch(ctx, surveyID, batchID); err != nil {
			return nil, err
		}
	}
	return s.Participants.ListParticipants(ctx, surveyID, batchID)
}
