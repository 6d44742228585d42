// internal/model/survey.go
package model

import (
	"time"
)

type Question struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

type Survey struct {
	SurveyID          string        `db:"survey_id" json:"survey_id"`
	Title             string        `db:"title" json:"title"`
	Questions         []Question    `db:"questions" json:"questions"`
	StartDate         time.Time     `db:"start_date" json:"start_date"`
	EndDate           time.Time     `db:"end_date" json:"end_date"`
	Timezone          string        `db:"timezone" json:"timezone,omitempty"`
	EscalationEnabled bool          `db:"escalation_enabled" json:"escalation_enabled"`
	EscalationDelay   time.Duration `db:"escalation_delay" json:"escalation_delay"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}

// Location resolves the survey timezone, falling back to UTC.
func (s *Survey) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
