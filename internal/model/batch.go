// internal/model/batch.go
package model

import "time"

type EscalationConfig struct {
	Enabled bool          `db:"escalation_enabled" json:"enabled"`
	Delay   time.Duration `db:"escalation_delay" json:"delay"`
}

type ChannelFlags struct {
	Email bool `db:"channel_email" json:"email"`
	Voice bool `db:"channel_voice" json:"voice"`
}

type Batch struct {
	BatchID     string           `db:"batch_id" json:"batch_id"`
	SurveyID    string           `db:"survey_id" json:"survey_id"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	Escalation  EscalationConfig `json:"escalation"`
	Channels    ChannelFlags     `json:"channels"`
	ProcessedAt *time.Time       `db:"processed_at" json:"processed_at,omitempty"`
}

// Escalation state of a batch as seen by the scheduler.
type BatchState string

const (
	BatchWaiting   BatchState = "WAITING"
	BatchDue       BatchState = "DUE"
	BatchProcessed BatchState = "PROCESSED"
)

func (b *Batch) DueAt() time.Time {
	return b.CreatedAt.Add(b.Escalation.Delay)
}

// VoiceEscalation reports whether the scheduler may place calls for this batch.
func (b *Batch) VoiceEscalation() bool {
	return b.Escalation.Enabled && b.Channels.Voice
}

func (b *Batch) State(now time.Time) BatchState {
	if b.ProcessedAt != nil {
		return BatchProcessed
	}
	if now.Before(b.DueAt()) {
		return BatchWaiting
	}
	return BatchDue
}
