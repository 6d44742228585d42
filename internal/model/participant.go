// internal/model/participant.go
package model

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusSent          Status = "SENT"
	StatusResponded     Status = "RESPONDED"
	StatusCallClaimed   Status = "CALL_CLAIMED"
	StatusCallTriggered Status = "CALL_TRIGGERED"
	StatusCallCompleted Status = "CALL_COMPLETED"
	StatusCallFailed    Status = "CALL_FAILED"
)

// AllStatuses lists every participant status in lifecycle order.
var AllStatuses = []Status{
	StatusSent,
	StatusCallClaimed,
	StatusCallTriggered,
	StatusCallCompleted,
	StatusCallFailed,
	StatusResponded,
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusResponded, StatusCallCompleted, StatusCallFailed:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// RespondableFrom is every status a submission may move to RESPONDED.
// A response after a call keeps the call fields; only RESPONDED itself is excluded.
func RespondableFrom() []Status {
	return []Status{StatusSent, StatusCallClaimed, StatusCallTriggered, StatusCallCompleted, StatusCallFailed}
}

type Participant struct {
	ParticipantID     string          `db:"participant_id" json:"participant_id"`
	BatchID           string          `db:"batch_id" json:"batch_id"`
	SurveyID          string          `db:"survey_id" json:"survey_id"`
	Email             string          `db:"email" json:"email"`
	Phone             string          `db:"phone" json:"phone,omitempty"`
	Status            Status          `db:"status" json:"status"`
	Version           int             `db:"version" json:"version"`
	SentAt            time.Time       `db:"sent_at" json:"sent_at"`
	RespondedAt       *time.Time      `db:"responded_at" json:"responded_at,omitempty"`
	ClaimedAt         *time.Time      `db:"claimed_at" json:"claimed_at,omitempty"`
	CalledAt          *time.Time      `db:"called_at" json:"called_at,omitempty"`
	CallID            string          `db:"call_id" json:"call_id,omitempty"`
	CallResult        string          `db:"call_result" json:"call_result,omitempty"`
	CallError         string          `db:"call_error" json:"call_error,omitempty"`
	Answers           json.RawMessage `db:"answers" json:"answers,omitempty"`
	Transcript        string          `db:"transcript" json:"transcript,omitempty"`
	StructuredAnswers json.RawMessage `db:"structured_answers" json:"structured_answers,omitempty"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// ParticipantPatch carries the optional fields written together with a status transition.
// Nil fields are left untouched.
type ParticipantPatch struct {
	RespondedAt       *time.Time
	ClaimedAt         *time.Time
	CalledAt          *time.Time
	CallID            *string
	CallResult        *string
	CallError         *string
	Transcript        *string
	StructuredAnswers json.RawMessage
}

// Apply copies the non-nil patch fields onto p. Used by the in-memory store.
func (pp ParticipantPatch) Apply(p *Participant) {
	if pp.RespondedAt != nil {
		t := *pp.RespondedAt
		p.RespondedAt = &t
	}
	if pp.ClaimedAt != nil {
		t := *pp.ClaimedAt
		p.ClaimedAt = &t
	}
	if pp.CalledAt != nil {
		t := *pp.CalledAt
		p.CalledAt = &t
	}
	if pp.CallID != nil {
		p.CallID = *pp.CallID
	}
	if pp.CallResult != nil {
		p.CallResult = *pp.CallResult
	}
	if pp.CallError != nil {
		p.CallError = *pp.CallError
	}
	if pp.Transcript != nil {
		p.Transcript = *pp.Transcript
	}
	if len(pp.StructuredAnswers) > 0 {
		p.StructuredAnswers = append(json.RawMessage(nil), pp.StructuredAnswers...)
	}
}

// Recipient is one entry of a send request.
type Recipient struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}
