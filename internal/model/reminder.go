// internal/model/reminder.go
package model

import "time"

type ReminderType string

const (
	ReminderOpening    ReminderType = "opening"
	ReminderFinalHours ReminderType = "final_hours"
	ReminderMidpoint   ReminderType = "midpoint"
	ReminderOneThird   ReminderType = "one_third"
	ReminderWeekBefore ReminderType = "week_before"
	ReminderDayBefore  ReminderType = "day_before"
	ReminderClosing    ReminderType = "closing"
)

type ReminderDate struct {
	Date string       `json:"date"` // calendar date, 2006-01-02
	At   time.Time    `json:"at"`   // delivery instant
	Type ReminderType `json:"type"`
}

type ReminderSchedule struct {
	SurveyID string         `json:"survey_id,omitempty"`
	Dates    []ReminderDate `json:"dates"`
}
