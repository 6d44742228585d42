package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/survey-escalation/internal/db"
	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
)

type ParticipantRepository struct {
	DB      *sql.DB
	Dialect db.Dialect
}

const participantColumns = `participant_id, batch_id, survey_id, email, phone, status, version, sent_at,
	responded_at, claimed_at, called_at, call_id, call_result, call_error, answers, transcript,
	structured_answers, updated_at`

const batchColumns = `batch_id, survey_id, created_at, escalation_enabled, escalation_delay_seconds,
	channel_email, channel_voice, processed_at`

func (r *ParticipantRepository) q(query string) string {
	return db.Rebind(r.Dialect, query)
}

// ====================== Batches ======================

func (r *ParticipantRepository) CreateBatch(ctx context.Context, b *model.Batch, participants []*model.Participant) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.q(`
		INSERT INTO batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		b.BatchID, b.SurveyID, b.CreatedAt, b.Escalation.Enabled, int64(b.Escalation.Delay/time.Second),
		b.Channels.Email, b.Channels.Voice, b.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r.q(`
		INSERT INTO participants (participant_id, batch_id, survey_id, email, phone, status, version, sent_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range participants {
		if _, err := stmt.ExecContext(ctx, p.ParticipantID, p.BatchID, p.SurveyID, p.Email, p.Phone, string(p.Status), p.SentAt, p.UpdatedAt); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return tx.Commit()
}

func (r *ParticipantRepository) GetBatch(ctx context.Context, surveyID, batchID string) (*model.Batch, error) {
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+batchColumns+` FROM batches WHERE survey_id=? AND batch_id=?`), surveyID, batchID)
	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewBatchNotFound(surveyID, batchID)
		}
		return nil, err
	}
	return b, nil
}

// ListBatches returns every batch of a survey, or of all surveys when surveyID is empty.
func (r *ParticipantRepository) ListBatches(ctx context.Context, surveyID string) ([]*model.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches`
	args := []interface{}{}
	if surveyID != "" {
		query += ` WHERE survey_id=?`
		args = append(args, surveyID)
	}
	query += ` ORDER BY created_at`
	return r.queryBatches(ctx, query, args...)
}

// ListPendingEscalations returns unprocessed batches with voice escalation enabled.
func (r *ParticipantRepository) ListPendingEscalations(ctx context.Context) ([]*model.Batch, error) {
	return r.queryBatches(ctx, `SELECT `+batchColumns+` FROM batches
		WHERE processed_at IS NULL AND escalation_enabled = ? AND channel_voice = ?
		ORDER BY created_at`, true, true)
}

func (r *ParticipantRepository) MarkBatchProcessed(ctx context.Context, batchID string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, r.q(`UPDATE batches SET processed_at=? WHERE batch_id=? AND processed_at IS NULL`), at, batchID)
	return err
}

func (r *ParticipantRepository) queryBatches(ctx context.Context, query string, args ...interface{}) ([]*model.Batch, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := []*model.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ====================== Participants ======================

func (r *ParticipantRepository) GetParticipant(ctx context.Context, surveyID, batchID, participantID string) (*model.Participant, error) {
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+participantColumns+` FROM participants
		WHERE survey_id=? AND batch_id=? AND participant_id=?`), surveyID, batchID, participantID)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewParticipantNotFound(participantID)
		}
		return nil, err
	}
	return p, nil
}

// ListParticipants lists one batch, or every batch of the survey when batchID is empty.
func (r *ParticipantRepository) ListParticipants(ctx context.Context, surveyID, batchID string) ([]*model.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE survey_id=?`
	args := []interface{}{surveyID}
	if batchID != "" {
		query += ` AND batch_id=?`
		args = append(args, batchID)
	}
	query += ` ORDER BY sent_at, participant_id`
	return r.queryParticipants(ctx, query, args...)
}

func (r *ParticipantRepository) ListParticipantsByStatus(ctx context.Context, status model.Status) ([]*model.Participant, error) {
	return r.queryParticipants(ctx, `SELECT `+participantColumns+` FROM participants WHERE status=? ORDER BY updated_at`, string(status))
}

func (r *ParticipantRepository) FindByCallID(ctx context.Context, callID string) (*model.Participant, error) {
	if callID == "" {
		return nil, nil
	}
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+participantColumns+` FROM participants WHERE call_id=?`), callID)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// Transition moves a participant to `to` only if its persisted status is one of `from`.
// It reports whether this call won the write.
func (r *ParticipantRepository) Transition(ctx context.Context, participantID string, from []model.Status, to model.Status, patch model.ParticipantPatch, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition to %s: empty from-set", to)
	}

	sets := []string{"status=?", "version=version+1", "updated_at=?"}
	args := []interface{}{string(to), at}
	add := func(col string, v interface{}) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if patch.RespondedAt != nil {
		add("responded_at", *patch.RespondedAt)
	}
	if patch.ClaimedAt != nil {
		add("claimed_at", *patch.ClaimedAt)
	}
	if patch.CalledAt != nil {
		add("called_at", *patch.CalledAt)
	}
	if patch.CallID != nil {
		add("call_id", *patch.CallID)
	}
	if patch.CallResult != nil {
		add("call_result", *patch.CallResult)
	}
	if patch.CallError != nil {
		add("call_error", *patch.CallError)
	}
	if patch.Transcript != nil {
		add("transcript", *patch.Transcript)
	}
	if len(patch.StructuredAnswers) > 0 {
		add("structured_answers", string(patch.StructuredAnswers))
	}

	placeholders := make([]string, len(from))
	args = append(args, participantID)
	for i, s := range from {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	query := `UPDATE participants SET ` + strings.Join(sets, ", ") +
		` WHERE participant_id=? AND status IN (` + strings.Join(placeholders, ", ") + `)`
	res, err := r.DB.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return false, fmt.Errorf("transition %s to %s: %w", participantID, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateAnswers stores the latest submission; last write wins.
func (r *ParticipantRepository) UpdateAnswers(ctx context.Context, participantID string, answers json.RawMessage, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, r.q(`UPDATE participants SET answers=?, updated_at=? WHERE participant_id=?`), string(answers), at, participantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewParticipantNotFound(participantID)
	}
	return nil
}

func (r *ParticipantRepository) queryParticipants(ctx context.Context, query string, args ...interface{}) ([]*model.Participant, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []*model.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// ====================== Reminders & call events ======================

// MarkReminderSent records the marker and reports whether it was newly inserted.
func (r *ParticipantRepository) MarkReminderSent(ctx context.Context, participantID string, reminder model.ReminderType, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, r.q(`
		INSERT INTO reminder_marks (participant_id, reminder_type, sent_at)
		VALUES (?, ?, ?)
		ON CONFLICT (participant_id, reminder_type) DO NOTHING`), participantID, string(reminder), at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ParticipantRepository) AppendCallEvent(ctx context.Context, ev *model.CallEvent) error {
	_, err := r.DB.ExecContext(ctx, r.q(`
		INSERT INTO call_events (id, call_id, participant_id, event_type, call_status, transcript, note, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		ev.ID, ev.CallID, ev.ParticipantID, ev.EventType, ev.CallStatus, ev.Transcript, ev.Note, ev.ReceivedAt)
	return err
}

func (r *ParticipantRepository) ListCallEvents(ctx context.Context, callID string) ([]*model.CallEvent, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`
		SELECT id, call_id, participant_id, event_type, call_status, transcript, note, received_at
		FROM call_events WHERE call_id=? ORDER BY received_at, id`), callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*model.CallEvent{}
	for rows.Next() {
		var ev model.CallEvent
		if err := rows.Scan(&ev.ID, &ev.CallID, &ev.ParticipantID, &ev.EventType, &ev.CallStatus, &ev.Transcript, &ev.Note, &ev.ReceivedAt); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (r *ParticipantRepository) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

// ====================== Scanning ======================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(row rowScanner) (*model.Batch, error) {
	var b model.Batch
	var delaySeconds int64
	var processed sql.NullTime
	if err := row.Scan(&b.BatchID, &b.SurveyID, &b.CreatedAt, &b.Escalation.Enabled, &delaySeconds,
		&b.Channels.Email, &b.Channels.Voice, &processed); err != nil {
		return nil, err
	}
	b.Escalation.Delay = time.Duration(delaySeconds) * time.Second
	if processed.Valid {
		t := processed.Time
		b.ProcessedAt = &t
	}
	return &b, nil
}

func scanParticipant(row rowScanner) (*model.Participant, error) {
	var p model.Participant
	var responded, claimed, called sql.NullTime
	var answers, structured string
	if err := row.Scan(&p.ParticipantID, &p.BatchID, &p.SurveyID, &p.Email, &p.Phone, &p.Status, &p.Version, &p.SentAt,
		&responded, &claimed, &called, &p.CallID, &p.CallResult, &p.CallError, &answers, &p.Transcript,
		&structured, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.RespondedAt = nullTimePtr(responded)
	p.ClaimedAt = nullTimePtr(claimed)
	p.CalledAt = nullTimePtr(called)
	if answers != "" {
		p.Answers = json.RawMessage(answers)
	}
	if structured != "" {
		p.StructuredAnswers = json.RawMessage(structured)
	}
	return &p, nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

var _ ParticipantRepositoryInterface = (*ParticipantRepository)(nil)
