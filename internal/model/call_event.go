// internal/model/call_event.go
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// CallEvent is one row of the append-only call audit log.
type CallEvent struct {
	ID            string    `db:"id" json:"id"`
	CallID        string    `db:"call_id" json:"call_id"`
	ParticipantID string    `db:"participant_id" json:"participant_id,omitempty"`
	EventType     string    `db:"event_type" json:"event_type"`
	CallStatus    string    `db:"call_status" json:"call_status,omitempty"`
	Transcript    string    `db:"transcript" json:"transcript,omitempty"`
	Note          string    `db:"note" json:"note,omitempty"`
	ReceivedAt    time.Time `db:"received_at" json:"received_at"`
}

// Provider webhook payload.
type webhookEnvelope struct {
	Message struct {
		Type       string        `json:"type"`
		Status     string        `json:"status"`
		Transcript string        `json:"transcript"`
		Role       string        `json:"role"`
		Analysis   *callAnalysis `json:"analysis"`
		Call       *webhookCall  `json:"call"`
	} `json:"message"`
}

type callAnalysis struct {
	StructuredData json.RawMessage `json:"structuredData"`
	Summary        string          `json:"summary"`
}

type webhookCall struct {
	ID         string       `json:"id"`
	Status     string       `json:"status"`
	Transcript string       `json:"transcript"`
	Metadata   CallMetadata `json:"metadata"`
}

type CallMetadata struct {
	SurveyID      string `json:"surveyId"`
	BatchID       string `json:"batchId,omitempty"`
	ParticipantID string `json:"participantId,omitempty"`
}

// ProviderEvent is the closed set of webhook events the service understands.
// Implementations: *CallEndedEvent, *CallStatusEvent, *TranscriptEvent, *UnknownEvent.
type ProviderEvent interface {
	EventType() string
	providerEvent()
}

// CallEndedEvent covers end-of-call-report, hang, and status-update with status "ended".
type CallEndedEvent struct {
	Type           string
	CallID         string
	CallStatus     string
	Transcript     string
	StructuredData json.RawMessage
	Metadata       CallMetadata
}

// CallStatusEvent is a status-update for a call that is still in progress.
type CallStatusEvent struct {
	CallID     string
	CallStatus string
	Metadata   CallMetadata
}

type TranscriptEvent struct {
	CallID     string
	Role       string
	Transcript string
	Metadata   CallMetadata
}

type UnknownEvent struct {
	Type string
}

func (e *CallEndedEvent) EventType() string  { return e.Type }
func (e *CallStatusEvent) EventType() string { return "status-update" }
func (e *TranscriptEvent) EventType() string { return "transcript" }
func (e *UnknownEvent) EventType() string    { return e.Type }

func (*CallEndedEvent) providerEvent()  {}
func (*CallStatusEvent) providerEvent() {}
func (*TranscriptEvent) providerEvent() {}
func (*UnknownEvent) providerEvent()    {}

// ParseProviderEvent decodes a raw webhook body into a ProviderEvent.
func ParseProviderEvent(raw []byte) (ProviderEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}
	msg := env.Message
	call := msg.Call
	if call == nil {
		call = &webhookCall{}
	}

	transcript := call.Transcript
	if transcript == "" {
		transcript = msg.Transcript
	}
	callStatus := call.Status
	if callStatus == "" {
		callStatus = msg.Status
	}

	switch msg.Type {
	case "end-of-call-report", "hang":
		ev := &CallEndedEvent{
			Type:       msg.Type,
			CallID:     call.ID,
			CallStatus: callStatus,
			Transcript: transcript,
			Metadata:   call.Metadata,
		}
		if msg.Analysis != nil {
			ev.StructuredData = msg.Analysis.StructuredData
		}
		return ev, nil
	case "status-update":
		if callStatus == "ended" {
			return &CallEndedEvent{
				Type:       msg.Type,
				CallID:     call.ID,
				CallStatus: callStatus,
				Transcript: transcript,
				Metadata:   call.Metadata,
			}, nil
		}
		return &CallStatusEvent{CallID: call.ID, CallStatus: callStatus, Metadata: call.Metadata}, nil
	case "transcript":
		return &TranscriptEvent{CallID: call.ID, Role: msg.Role, Transcript: transcript, Metadata: call.Metadata}, nil
	default:
		return &UnknownEvent{Type: msg.Type}, nil
	}
}
