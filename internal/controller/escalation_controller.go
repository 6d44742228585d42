package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/unclebandit/survey-escalation/internal/repository"
	"github.com/unclebandit/survey-escalation/internal/service"
)

type EscalationController struct {
	Scheduler *service.Scheduler
	Store     repository.ParticipantRepositoryInterface
}

// TriggerEscalation runs an immediate escalation pass. With no surveyId it
// processes every due batch; otherwise the survey's batches (or one batch)
// regardless of their delay.
func (c *EscalationController) TriggerEscalation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SurveyID string `json:"surveyId"`
		BatchID  string `json:"batchId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, &badBody{err})
		return
	}

	report, err := c.Scheduler.TriggerEscalation(r.Context(), body.SurveyID, body.BatchID)
	if err != nil && report == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		// Partial pass: report what happened, surface the error alongside.
		writeJSON(w, http.StatusOK, map[string]any{
			"successful": report.Successful,
			"failed":     report.Failed,
			"skipped":    report.Skipped,
			"details":    report.Details,
			"error":      err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (c *EscalationController) Schedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := c.Scheduler.Schedules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": schedules})
}

func (c *EscalationController) Health(w http.ResponseWriter, r *http.Request) {
	if err := c.Store.Ping(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
