package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/survey-escalation/internal/controller"
)

type Routes struct {
	Surveys         *controller.SurveyController
	Submissions     *controller.SubmissionController
	Escalation      *controller.EscalationController
	Webhook         *WebhookHandler
	OperatorKeyHash string
}

// NewRouter wires every HTTP endpoint. Respondent and provider endpoints are
// public; survey management and escalation sit behind the operator key.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", rt.Escalation.Health)
	r.Post("/webhook", rt.Webhook.HandleWebhook)
	r.Post("/survey/{surveyId}/submit", rt.Submissions.Submit)

	r.Group(func(r chi.Router) {
		r.Use(OperatorAuth(rt.OperatorKeyHash))

		// Survey routes
		r.Post("/surveys", rt.Surveys.CreateSurvey)
		r.Get("/surveys", rt.Surveys.ListSurveys)
		r.Get("/surveys/{surveyId}", rt.Surveys.GetSurvey)
		r.Post("/surveys/{surveyId}/send", rt.Surveys.SendSurvey)
		r.Get("/surveys/{surveyId}/participants", rt.Surveys.ListParticipants)
		r.Get("/surveys/{surveyId}/batches/{batchId}/participants/{participantId}", rt.Surveys.GetParticipant)
		r.Get("/surveys/{surveyId}/reminders", rt.Surveys.GetReminders)

		// Escalation routes
		r.Post("/trigger-escalation", rt.Escalation.TriggerEscalation)
		r.Get("/schedules", rt.Escalation.Schedules)
	})
	return r
}
