package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/unclebandit/survey-escalation/internal/model"
)

// ParticipantRepositoryInterface is the batch-scoped participant store.
// Transition is the only write that changes status; it must be a single
// conditional write so that concurrent callers cannot both win.
type ParticipantRepositoryInterface interface {
	// Batches
	CreateBatch(ctx context.Context, b *model.Batch, participants []*model.Participant) error
	GetBatch(ctx context.Context, surveyID, batchID string) (*model.Batch, error)
	ListBatches(ctx context.Context, surveyID string) ([]*model.Batch, error)
	ListPendingEscalations(ctx context.Context) ([]*model.Batch, error)
	MarkBatchProcessed(ctx context.Context, batchID string, at time.Time) error

	// Participants
	GetParticipant(ctx context.Context, surveyID, batchID, participantID string) (*model.Participant, error)
	ListParticipants(ctx context.Context, surveyID, batchID string) ([]*model.Participant, error)
	ListParticipantsByStatus(ctx context.Context, status model.Status) ([]*model.Participant, error)
	FindByCallID(ctx context.Context, callID string) (*model.Participant, error)
	Transition(ctx context.Context, participantID string, from []model.Status, to model.Status, patch model.ParticipantPatch, at time.Time) (bool, error)
	UpdateAnswers(ctx context.Context, participantID string, answers json.RawMessage, at time.Time) error

	// Reminders and audit
	MarkReminderSent(ctx context.Context, participantID string, reminder model.ReminderType, at time.Time) (bool, error)
	AppendCallEvent(ctx context.Context, ev *model.CallEvent) error
	ListCallEvents(ctx context.Context, callID string) ([]*model.CallEvent, error)

	Ping(ctx context.Context) error
}

type SurveyRepositoryInterface interface {
	SaveSurvey(ctx context.Context, s *model.Survey) error
	GetSurvey(ctx context.Context, surveyID string) (*model.Survey, error)
	ListSurveys(ctx context.Context) ([]*model.Survey, error)
}

func containsStatus(list []model.Status, s model.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
