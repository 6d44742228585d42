package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/provider"
	"github.com/unclebandit/survey-escalation/internal/repository"
)

// EmailWorker sends queued invitation and reminder emails.
type EmailWorker struct {
	Participants repository.ParticipantRepositoryInterface
	Surveys      repository.SurveyRepositoryInterface
	Links        *LinkBuilder
	Mailer       provider.Mailer
}

// Handle is the survey_emails queue handler. A returned error asks the queue to retry.
func (w *EmailWorker) Handle(body []byte) error {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		log.Println("⚠️ dropping malformed email job:", err)
		return nil
	}
	return w.Process(context.Background(), job)
}

func (w *EmailWorker) Process(ctx context.Context, job EmailJob) error {
	p, err := w.Participants.GetParticipant(ctx, job.SurveyID, job.BatchID, job.ParticipantID)
	if err != nil {
		return fmt.Errorf("load participant %s: %w", job.ParticipantID, err)
	}
	if job.Reminder != model.ReminderOpening && p.Status == model.StatusResponded {
		return nil
	}
	survey, err := w.Surveys.GetSurvey(ctx, job.SurveyID)
	if err != nil {
		return fmt.Errorf("load survey %s: %w", job.SurveyID, err)
	}
	link, err := w.Links.Link(p)
	if err != nil {
		return err
	}

	subject, body := RenderEmail(job.Reminder, survey, link)
	if err := w.Mailer.Send(ctx, provider.Email{To: p.Email, Subject: subject, Body: body}); err != nil {
		return err
	}
	log.Printf("📧 %s email sent to participant %s", job.Reminder, p.ParticipantID)
	return nil
}
