package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
)

// MemoryStore keeps surveys, batches and participants in process memory.
// Every method takes the store lock, so Transition is atomic.
type MemoryStore struct {
	mu           sync.Mutex
	surveys      map[string]*model.Survey
	batches      map[string]*model.Batch
	participants map[string]*model.Participant
	reminders    map[string]time.Time
	callEvents   []*model.CallEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		surveys:      make(map[string]*model.Survey),
		batches:      make(map[string]*model.Batch),
		participants: make(map[string]*model.Participant),
		reminders:    make(map[string]time.Time),
	}
}

// ====================== Surveys ======================

func (m *MemoryStore) SaveSurvey(ctx context.Context, s *model.Survey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	cp := *s
	cp.Questions = append([]model.Question(nil), s.Questions...)
	m.surveys[s.SurveyID] = &cp
	return nil
}

func (m *MemoryStore) GetSurvey(ctx context.Context, surveyID string) (*model.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[surveyID]
	if !ok {
		return nil, appErrors.NewSurveyNotFound(surveyID)
	}
	cp := *s
	cp.Questions = append([]model.Question(nil), s.Questions...)
	return &cp, nil
}

func (m *MemoryStore) ListSurveys(ctx context.Context) ([]*model.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Survey, 0, len(m.surveys))
	for _, s := range m.surveys {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ====================== Batches ======================

func (m *MemoryStore) CreateBatch(ctx context.Context, b *model.Batch, participants []*model.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb := *b
	m.batches[b.BatchID] = &cb
	for _, p := range participants {
		cp := *p
		m.participants[p.ParticipantID] = &cp
	}
	return nil
}

func (m *MemoryStore) GetBatch(ctx context.Context, surveyID, batchID string) (*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok || b.SurveyID != surveyID {
		return nil, appErrors.NewBatchNotFound(surveyID, batchID)
	}
	return copyBatch(b), nil
}

func (m *MemoryStore) ListBatches(ctx context.Context, surveyID string) ([]*model.Batch, error) {
	return m.filterBatches(func(b *model.Batch) bool {
		return surveyID == "" || b.SurveyID == surveyID
	}), nil
}

func (m *MemoryStore) ListPendingEscalations(ctx context.Context) ([]*model.Batch, error) {
	return m.filterBatches(func(b *model.Batch) bool {
		return b.ProcessedAt == nil && b.VoiceEscalation()
	}), nil
}

func (m *MemoryStore) MarkBatchProcessed(ctx context.Context, batchID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return appErrors.NewBatchNotFound("", batchID)
	}
	if b.ProcessedAt == nil {
		t := at
		b.ProcessedAt = &t
	}
	return nil
}

func (m *MemoryStore) filterBatches(keep func(*model.Batch) bool) []*model.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Batch{}
	for _, b := range m.batches {
		if keep(b) {
			out = append(out, copyBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ====================== Participants ======================

func (m *MemoryStore) GetParticipant(ctx context.Context, surveyID, batchID, participantID string) (*model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[participantID]
	if !ok || p.SurveyID != surveyID || p.BatchID != batchID {
		return nil, appErrors.NewParticipantNotFound(participantID)
	}
	return copyParticipant(p), nil
}

func (m *MemoryStore) ListParticipants(ctx context.Context, surveyID, batchID string) ([]*model.Participant, error) {
	return m.filterParticipants(func(p *model.Participant) bool {
		return p.SurveyID == surveyID && (batchID == "" || p.BatchID == batchID)
	}), nil
}

func (m *MemoryStore) ListParticipantsByStatus(ctx context.Context, status model.Status) ([]*model.Participant, error) {
	return m.filterParticipants(func(p *model.Participant) bool { return p.Status == status }), nil
}

func (m *MemoryStore) FindByCallID(ctx context.Context, callID string) (*model.Participant, error) {
	if callID == "" {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants {
		if p.CallID == callID {
			return copyParticipant(p), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) Transition(ctx context.Context, participantID string, from []model.Status, to model.Status, patch model.ParticipantPatch, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition to %s: empty from-set", to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[participantID]
	if !ok || !containsStatus(from, p.Status) {
		return false, nil
	}
	p.Status = to
	p.Version++
	p.UpdatedAt = at
	patch.Apply(p)
	return true, nil
}

func (m *MemoryStore) UpdateAnswers(ctx context.Context, participantID string, answers json.RawMessage, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[participantID]
	if !ok {
		return appErrors.NewParticipantNotFound(participantID)
	}
	p.Answers = append(json.RawMessage(nil), answers...)
	p.UpdatedAt = at
	return nil
}

func (m *MemoryStore) filterParticipants(keep func(*model.Participant) bool) []*model.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Participant{}
	for _, p := range m.participants {
		if keep(p) {
			out = append(out, copyParticipant(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ParticipantID < out[j].ParticipantID
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out
}

// ====================== Reminders & call events ======================

func (m *MemoryStore) MarkReminderSent(ctx context.Context, participantID string, reminder model.ReminderType, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := participantID + "|" + string(reminder)
	if _, ok := m.reminders[key]; ok {
		return false, nil
	}
	m.reminders[key] = at
	return true, nil
}

func (m *MemoryStore) AppendCallEvent(ctx context.Context, ev *model.CallEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ev
	m.callEvents = append(m.callEvents, &cp)
	return nil
}

func (m *MemoryStore) ListCallEvents(ctx context.Context, callID string) ([]*model.CallEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.CallEvent{}
	for _, ev := range m.callEvents {
		if ev.CallID == callID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func copyBatch(b *model.Batch) *model.Batch {
	cp := *b
	if b.ProcessedAt != nil {
		t := *b.ProcessedAt
		cp.ProcessedAt = &t
	}
	return &cp
}

func copyParticipant(p *model.Participant) *model.Participant {
	cp := *p
	cp.Answers = append(json.RawMessage(nil), p.Answers...)
	cp.StructuredAnswers = append(json.RawMessage(nil), p.StructuredAnswers...)
	return &cp
}

var (
	_ ParticipantRepositoryInterface = (*MemoryStore)(nil)
	_ SurveyRepositoryInterface      = (*MemoryStore)(nil)
)
