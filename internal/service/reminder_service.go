package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/queue"
	"github.com/unclebandit/survey-escalation/internal/repository"
)

// ReminderService turns planned reminder dates into queued emails.
type ReminderService struct {
	Participants repository.ParticipantRepositoryInterface
	Surveys      repository.SurveyRepositoryInterface
	Queue        queue.Queue
	Policy       *PolicyHolder
}

// Schedule returns the reminder plan of one survey.
func (s *ReminderService) Schedule(ctx context.Context, surveyID string) (model.ReminderSchedule, error) {
	survey, err := s.Surveys.GetSurvey(ctx, surveyID)
	if err != nil {
		return model.ReminderSchedule{}, err
	}
	return s.plan(survey), nil
}

func (s *ReminderService) plan(survey *model.Survey) model.ReminderSchedule {
	sched := PlanReminders(survey.StartDate, survey.EndDate, survey.Location(), s.Policy.Get().ReminderSendHour)
	sched.SurveyID = survey.SurveyID
	return sched
}

// SendDueReminders queues every reminder that is due at now for participants
// who have not responded. The (participant, reminder type) marker is claimed
// before publishing so each reminder type goes out once per participant.
func (s *ReminderService) SendDueReminders(ctx context.Context, now time.Time) (int, error) {
	surveys, err := s.Surveys.ListSurveys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list surveys: %w", err)
	}

	queued := 0
	var errs []error
	for _, survey := range surveys {
		due := DueReminders(s.plan(survey), survey.EndDate, survey.Location(), now)
		if len(due) == 0 {
			continue
		}
		n, err := s.sendSurveyReminders(ctx, survey, due, now)
		queued += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return queued, errors.Join(errs...)
}

func (s *ReminderService) sendSurveyReminders(ctx context.Context, survey *model.Survey, due []model.ReminderDate, now time.Time) (int, error) {
	batches, err := s.Participants.ListBatches(ctx, survey.SurveyID)
	if err != nil {
		return 0, fmt.Errorf("list batches of survey %s: %w", survey.SurveyID, err)
	}

	queued := 0
	for _, b := range batches {
		if !b.Channels.Email {
			continue
		}
		participants, err := s.Participants.ListParticipants(ctx, survey.SurveyID, b.BatchID)
		if err != nil {
			return queued, fmt.Errorf("list participants of batch %s: %w", b.BatchID, err)
		}
		for _, p := range participants {
			if p.Status == model.StatusResponded {
				continue
			}
			for _, r := range due {
				// Invited after this reminder was due: the invitation covers it.
				if p.SentAt.After(r.At) {
					continue
				}
				won, err := s.Participants.MarkReminderSent(ctx, p.ParticipantID, r.Type, now)
				if err != nil {
					log.Println("⚠️ failed to claim reminder marker:", err)
					continue
				}
				if !won {
					continue
				}
				job := EmailJob{SurveyID: p.SurveyID, BatchID: p.BatchID, ParticipantID: p.ParticipantID, Reminder: r.Type}
				if err := s.Queue.Publish(queue.TopicSurveyEmails, job); err != nil {
					log.Printf("⚠️ failed to enqueue %s reminder for participant %s: %v", r.Type, p.ParticipantID, err)
					continue
				}
				queued++
			}
		}
	}
	return queued, nil
}
