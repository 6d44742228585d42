package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/survey-escalation/internal/config"
	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/repository"
)

const staleClaimReason = "stale claim: outcome unknown"

// EscalationReport summarizes one escalation pass.
type EscalationReport struct {
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Skipped    int              `json:"skipped"`
	Details    []DispatchResult `json:"details"`
}

func (r *EscalationReport) add(res DispatchResult) {
	switch res.Outcome {
	case OutcomeDispatched:
		r.Successful++
	case OutcomeError:
		r.Failed++
	default:
		r.Skipped++
	}
	r.Details = append(r.Details, res)
}

// BatchSchedule is the escalation status of one batch as reported to operators.
type BatchSchedule struct {
	BatchID             string               `json:"batch_id"`
	SurveyID            string               `json:"survey_id"`
	CreatedAt           time.Time            `json:"created_at"`
	DueAt               time.Time            `json:"due_at"`
	State               model.BatchState     `json:"state"`
	IsDue               bool                 `json:"isDue"`
	TimeUntilDue        string               `json:"timeUntilDue"`
	TimeUntilDueSeconds int64                `json:"timeUntilDueSeconds"`
	Counts              map[model.Status]int `json:"counts"`
}

// Scheduler drives voice escalation on a fixed tick. One instance per process.
type Scheduler struct {
	Participants repository.ParticipantRepositoryInterface
	Surveys      repository.SurveyRepositoryInterface
	Dispatcher   *Dispatcher
	Reminders    *ReminderService
	Policy       *PolicyHolder
	Now          func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	resetCh chan time.Duration
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Start runs the tick loop until Stop is called or ctx ends. It ticks once immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.resetCh = make(chan time.Duration, 1)
	done, reset := s.done, s.resetCh
	s.mu.Unlock()

	interval := s.Policy.Get().TickInterval
	log.Printf("⏰ escalation scheduler started (tick every %s)", interval)
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-reset:
				ticker.Reset(d)
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for the running tick to finish.
// Claims already persisted stay as they are.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done, s.resetCh = nil, nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Println("🛑 escalation scheduler stopped")
}

// UpdatePolicy swaps in a reloaded policy; a new tick interval applies from the next tick.
func (s *Scheduler) UpdatePolicy(p config.Policy) {
	s.Policy.Set(p)
	interval := s.Policy.Get().TickInterval

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetCh == nil {
		return
	}
	select {
	case s.resetCh <- interval:
	default:
		select {
		case <-s.resetCh:
		default:
		}
		s.resetCh <- interval
	}
}

// Tick runs one scheduler pass: stale claim sweep, due batches, due reminders.
func (s *Scheduler) Tick(ctx context.Context) {
	if n, err := s.SweepStaleClaims(ctx); err != nil {
		log.Println("⚠️ stale claim sweep failed:", err)
	} else if n > 0 {
		log.Printf("❌ %d stale claims marked CALL_FAILED; check provider for placed calls", n)
	}

	report, err := s.ProcessDueBatches(ctx)
	if err != nil {
		log.Println("⚠️ escalation pass incomplete:", err)
	}
	if report != nil && (report.Successful > 0 || report.Failed > 0) {
		log.Printf("📞 escalation pass: %d dispatched, %d failed, %d skipped", report.Successful, report.Failed, report.Skipped)
	}

	if s.Reminders != nil {
		n, err := s.Reminders.SendDueReminders(ctx, s.now())
		if err != nil {
			log.Println("⚠️ reminder pass incomplete:", err)
		}
		if n > 0 {
			log.Printf("📧 %d reminders queued", n)
		}
	}
}

// ProcessDueBatches escalates every batch whose delay has elapsed.
func (s *Scheduler) ProcessDueBatches(ctx context.Context) (*EscalationReport, error) {
	pending, err := s.Participants.ListPendingEscalations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending escalations: %w", err)
	}
	now := s.now()
	due := pending[:0]
	for _, b := range pending {
		if b.State(now) == model.BatchDue {
			due = append(due, b)
		}
	}
	return s.processBatches(ctx, due)
}

// TriggerEscalation forces escalation of one batch, or every batch of the
// survey when batchID is empty, without waiting for the delay. It goes
// through the same claim path as the tick.
func (s *Scheduler) TriggerEscalation(ctx context.Context, surveyID, batchID string) (*EscalationReport, error) {
	if surveyID == "" {
		return s.ProcessDueBatches(ctx)
	}
	if _, err := s.Surveys.GetSurvey(ctx, surveyID); err != nil {
		return nil, err
	}

	var batches []*model.Batch
	if batchID != "" {
		b, err := s.Participants.GetBatch(ctx, surveyID, batchID)
		if err != nil {
			return nil, err
		}
		batches = []*model.Batch{b}
	} else {
		all, err := s.Participants.ListBatches(ctx, surveyID)
		if err != nil {
			return nil, err
		}
		batches = all
	}

	report := &EscalationReport{Details: []DispatchResult{}}
	var eligible []*model.Batch
	for _, b := range batches {
		switch {
		case b.ProcessedAt != nil:
			report.add(DispatchResult{BatchID: b.BatchID, Outcome: OutcomeSkipped, Reason: "batch already processed"})
		case !b.VoiceEscalation():
			report.add(DispatchResult{BatchID: b.BatchID, Outcome: OutcomeSkipped, Reason: "voice escalation disabled"})
		default:
			eligible = append(eligible, b)
		}
	}

	processed, err := s.processBatches(ctx, eligible)
	if processed != nil {
		report.Successful += processed.Successful
		report.Failed += processed.Failed
		report.Skipped += processed.Skipped
		report.Details = append(report.Details, processed.Details...)
	}
	return report, err
}

// processBatches handles batches concurrently up to the policy limit. Each
// batch only ever touches its own participants.
func (s *Scheduler) processBatches(ctx context.Context, batches []*model.Batch) (*EscalationReport, error) {
	report := &EscalationReport{Details: []DispatchResult{}}
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Policy.Get().BatchConcurrency)
	for _, b := range batches {
		b := b
		g.Go(func() error {
			results, err := s.processBatch(gctx, b)
			mu.Lock()
			defer mu.Unlock()
			for _, r := range results {
				report.add(r)
			}
			if err != nil {
				// Keep going: one broken batch must not starve the others.
				errs = append(errs, fmt.Errorf("batch %s: %w", b.BatchID, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(report.Details, func(i, j int) bool { return report.Details[i].BatchID < report.Details[j].BatchID })
	return report, errors.Join(errs...)
}

func (s *Scheduler) processBatch(ctx context.Context, b *model.Batch) ([]DispatchResult, error) {
	survey, err := s.Surveys.GetSurvey(ctx, b.SurveyID)
	if err != nil {
		return nil, err
	}
	participants, err := s.Participants.ListParticipants(ctx, b.SurveyID, b.BatchID)
	if err != nil {
		return nil, err
	}

	var results []DispatchResult
	for _, p := range participants {
		if p.BatchID != b.BatchID || p.Status != model.StatusSent {
			continue
		}
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		results = append(results, s.Dispatcher.ClaimAndCall(ctx, p, survey))
	}

	// Processed once nobody is left SENT. Participants whose claim could not
	// be persisted are still SENT and get another try on the next tick.
	remaining, err := s.Participants.ListParticipants(ctx, b.SurveyID, b.BatchID)
	if err != nil {
		return results, err
	}
	for _, p := range remaining {
		if p.Status == model.StatusSent {
			return results, nil
		}
	}
	if err := s.Participants.MarkBatchProcessed(ctx, b.BatchID, s.now()); err != nil {
		return results, fmt.Errorf("mark processed: %w", err)
	}
	return results, nil
}

// SweepStaleClaims fails participants stuck in CALL_CLAIMED past the policy
// threshold. Whether the provider got the call is unknown, so it never re-dials.
func (s *Scheduler) SweepStaleClaims(ctx context.Context) (int, error) {
	after := s.Policy.Get().StaleClaimAfter
	if after <= 0 {
		return 0, nil
	}
	claimed, err := s.Participants.ListParticipantsByStatus(ctx, model.StatusCallClaimed)
	if err != nil {
		return 0, err
	}

	now := s.now()
	n := 0
	for _, p := range claimed {
		if p.ClaimedAt == nil || now.Sub(*p.ClaimedAt) < after {
			continue
		}
		result, reason := "stale", staleClaimReason
		won, err := s.Participants.Transition(ctx, p.ParticipantID,
			[]model.Status{model.StatusCallClaimed}, model.StatusCallFailed,
			model.ParticipantPatch{CallResult: &result, CallError: &reason}, now)
		if err != nil {
			log.Printf("⚠️ could not fail stale claim of participant %s: %v", p.ParticipantID, err)
			continue
		}
		if won {
			log.Printf("❌ participant %s claimed at %s never resolved; marked CALL_FAILED", p.ParticipantID, p.ClaimedAt.Format(time.RFC3339))
			n++
		}
	}
	return n, nil
}

// Schedules lists batches still waiting on or due for voice escalation.
func (s *Scheduler) Schedules(ctx context.Context) ([]BatchSchedule, error) {
	batches, err := s.Participants.ListPendingEscalations(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]BatchSchedule, 0, len(batches))
	for _, b := range batches {
		participants, err := s.Participants.ListParticipants(ctx, b.SurveyID, b.BatchID)
		if err != nil {
			return nil, err
		}
		counts := map[model.Status]int{}
		for _, p := range participants {
			counts[p.Status]++
		}
		until := b.DueAt().Sub(now)
		if until < 0 {
			until = 0
		}
		state := b.State(now)
		out = append(out, BatchSchedule{
			BatchID:             b.BatchID,
			SurveyID:            b.SurveyID,
			CreatedAt:           b.CreatedAt,
			DueAt:               b.DueAt(),
			State:               state,
			IsDue:               state == model.BatchDue,
			TimeUntilDue:        until.Round(time.Second).String(),
			TimeUntilDueSeconds: int64(until / time.Second),
			Counts:              counts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}
