package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/unclebandit/survey-escalation/internal/db"
	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
)

type SurveyRepository struct {
	DB      *sql.DB
	Dialect db.Dialect
}

const surveyColumns = `survey_id, title, questions, start_date, end_date, timezone, escalation_enabled,
	escalation_delay_seconds, created_at`

// SaveSurvey inserts the survey or replaces an existing one with the same id.
func (r *SurveyRepository) SaveSurvey(ctx context.Context, s *model.Survey) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	questions, err := json.Marshal(s.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	query := `
		INSERT INTO surveys (` + surveyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (survey_id) DO UPDATE SET
			title=excluded.title, questions=excluded.questions, start_date=excluded.start_date,
			end_date=excluded.end_date, timezone=excluded.timezone,
			escalation_enabled=excluded.escalation_enabled,
			escalation_delay_seconds=excluded.escalation_delay_seconds`
	_, err = r.DB.ExecContext(ctx, db.Rebind(r.Dialect, query),
		s.SurveyID, s.Title, string(questions), s.StartDate, s.EndDate, s.Timezone, s.EscalationEnabled,
		int64(s.EscalationDelay/time.Second), s.CreatedAt)
	return err
}

func (r *SurveyRepository) GetSurvey(ctx context.Context, surveyID string) (*model.Survey, error) {
	row := r.DB.QueryRowContext(ctx, db.Rebind(r.Dialect, `SELECT `+surveyColumns+` FROM surveys WHERE survey_id=?`), surveyID)
	s, err := scanSurvey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewSurveyNotFound(surveyID)
		}
		return nil, err
	}
	return s, nil
}

func (r *SurveyRepository) ListSurveys(ctx context.Context) ([]*model.Survey, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+surveyColumns+` FROM surveys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	surveys := []*model.Survey{}
	for rows.Next() {
		s, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		surveys = append(surveys, s)
	}
	return surveys, rows.Err()
}

func scanSurvey(row rowScanner) (*model.Survey, error) {
	var s model.Survey
	var questions string
	var delaySeconds int64
	if err := row.Scan(&s.SurveyID, &s.Title, &questions, &s.StartDate, &s.EndDate, &s.Timezone,
		&s.EscalationEnabled, &delaySeconds, &s.CreatedAt); err != nil {
		return nil, err
	}
	if questions != "" {
		if err := json.Unmarshal([]byte(questions), &s.Questions); err != nil {
			return nil, fmt.Errorf("decode questions for %s: %w", s.SurveyID, err)
		}
	}
	s.EscalationDelay = time.Duration(delaySeconds) * time.Second
	return &s, nil
}

var _ SurveyRepositoryInterface = (*SurveyRepository)(nil)
