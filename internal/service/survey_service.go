package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/repository"
)

type SurveyService struct {
	Surveys repository.SurveyRepositoryInterface
	Now     func() time.Time
}

// SaveSurvey validates and stores a survey definition, allocating an id when missing.
func (s *SurveyService) SaveSurvey(ctx context.Context, survey *model.Survey) error {
	if strings.TrimSpace(survey.Title) == "" {
		return fmt.Errorf("%w: title is required", appErrors.ErrInvalidRequest)
	}
	if survey.StartDate.IsZero() || survey.EndDate.IsZero() {
		return fmt.Errorf("%w: start_date and end_date are required", appErrors.ErrInvalidRequest)
	}
	if survey.EndDate.Before(survey.StartDate) {
		return fmt.Errorf("%w: end_date is before start_date", appErrors.ErrInvalidRequest)
	}
	if survey.Timezone != "" {
		if _, err := time.LoadLocation(survey.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", appErrors.ErrInvalidRequest, survey.Timezone)
		}
	}
	for i, q := range survey.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", appErrors.ErrInvalidRequest, i)
		}
		if q.ID == "" {
			survey.Questions[i].ID = fmt.Sprintf("q%d", i+1)
		}
	}
	if survey.SurveyID == "" {
		survey.SurveyID = uuid.NewString()
	}
	if survey.CreatedAt.IsZero() {
		if s.Now != nil {
			survey.CreatedAt = s.Now()
		} else {
			survey.CreatedAt = time.Now().UTC()
		}
	}
	return s.Surveys.SaveSurvey(ctx, survey)
}

func (s *SurveyService) GetSurvey(ctx context.Context, id string) (*model.Survey, error) {
	return s.Surveys.GetSurvey(ctx, id)
}

func (s *SurveyService) ListSurveys(ctx context.Context) ([]*model.Survey, error) {
	return s.Surveys.ListSurveys(ctx)
}
