// internal/controller/survey_controller.go
package controller

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/service"
)

type SurveyController struct {
	Surveys   *service.SurveyService
	Batches   *service.BatchService
	Reminders *service.ReminderService
}

type surveyRequest struct {
	SurveyID          string           `json:"survey_id"`
	Title             string           `json:"title"`
	Questions         []model.Question `json:"questions"`
	StartDate         string           `json:"start_date"`
	EndDate           string           `json:"end_date"`
	Timezone          string           `json:"timezone"`
	EscalationEnabled *bool            `json:"escalation_enabled"`
	EscalationDelay   string           `json:"escalation_delay"`
}

type sendRequest struct {
	Recipients []model.Recipient `json:"recipients"`
	Escalation *struct {
		Enabled bool   `json:"enabled"`
		Delay   string `json:"delay"`
	} `json:"escalation"`
	Channels *model.ChannelFlags `json:"channels"`
}

// ParseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", appErrors.ErrInvalidRequest, s)
	}
	return t, nil
}

func parseDelay(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: bad delay %q", appErrors.ErrInvalidRequest, s)
	}
	return d, nil
}

func (c *SurveyController) CreateSurvey(w http.ResponseWriter, r *http.Request) {
	var body surveyRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	start, err := ParseDate(body.StartDate)
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := ParseDate(body.EndDate)
	if err != nil {
		writeError(w, err)
		return
	}
	delay, err := parseDelay(body.EscalationDelay)
	if err != nil {
		writeError(w, err)
		return
	}

	survey := &model.Survey{
		SurveyID:          body.SurveyID,
		Title:             body.Title,
		Questions:         body.Questions,
		StartDate:         start,
		EndDate:           end,
		Timezone:          body.Timezone,
		EscalationEnabled: true,
		EscalationDelay:   delay,
	}
	if body.EscalationEnabled != nil {
		survey.EscalationEnabled = *body.EscalationEnabled
	}

	if err := c.Surveys.SaveSurvey(r.Context(), survey); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, survey)
}

func (c *SurveyController) ListSurveys(w http.ResponseWriter, r *http.Request) {
	surveys, err := c.Surveys.ListSurveys(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": surveys})
}

func (c *SurveyController) GetSurvey(w http.ResponseWriter, r *http.Request) {
	survey, err := c.Surveys.GetSurvey(r.Context(), chi.URLParam(r, "surveyId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, survey)
}

// SendSurvey creates a new batch for the survey and queues the invitations.
func (c *SurveyController) SendSurvey(w http.ResponseWriter, r *http.Request) {
	var body sendRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	req := service.CreateBatchRequest{
		SurveyID:   chi.URLParam(r, "surveyId"),
		Recipients: body.Recipients,
		Channels:   body.Channels,
	}
	if body.Escalation != nil {
		delay, err := parseDelay(body.Escalation.Delay)
		if err != nil {
			writeError(w, err)
			return
		}
		req.Escalation = &model.EscalationConfig{Enabled: body.Escalation.Enabled, Delay: delay}
	}

	result, err := c.Batches.CreateBatch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ListParticipants is the dashboard view; ?batchId= narrows it to one batch.
func (c *SurveyController) ListParticipants(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyId")
	batchID := r.URL.Query().Get("batchId")

	participants, err := c.Batches.ListParticipants(r.Context(), surveyID, batchID)
	if err != nil {
		writeError(w, err)
		return
	}

	stats := map[model.Status]int{}
	for _, p := range participants {
		stats[p.Status]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  participants,
		"stats": stats,
	})
}

func (c *SurveyController) GetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := c.Batches.GetParticipant(r.Context(),
		chi.URLParam(r, "surveyId"), chi.URLParam(r, "batchId"), chi.URLParam(r, "participantId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (c *SurveyController) GetReminders(w http.ResponseWriter, r *http.Request) {
	sched, err := c.Reminders.Schedule(r.Context(), chi.URLParam(r, "surveyId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}
