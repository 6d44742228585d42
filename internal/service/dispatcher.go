package service

import (
	"context"
	"errors"
	"log"
	"time"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/provider"
	"github.com/unclebandit/survey-escalation/internal/repository"
)

// VoiceCaller places outbound calls. *provider.VoiceClient implements it.
type VoiceCaller interface {
	PlaceCall(ctx context.Context, req provider.CallRequest) (*provider.CallResult, error)
}

type Outcome string

const (
	OutcomeSkipped    Outcome = "skipped"
	OutcomeDispatched Outcome = "dispatched"
	OutcomeError      Outcome = "error"
)

type DispatchResult struct {
	ParticipantID string  `json:"participant_id,omitempty"`
	BatchID       string  `json:"batch_id"`
	Outcome       Outcome `json:"outcome"`
	CallID        string  `json:"call_id,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// persistTimeout bounds the writes made after a claim is won. They run on a
// context detached from the caller so shutdown cannot strand a claimed row.
const persistTimeout = 10 * time.Second

// Dispatcher owns the claim-before-call protocol.
type Dispatcher struct {
	Participants repository.ParticipantRepositoryInterface
	Voice        VoiceCaller
	Now          func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// ClaimAndCall escalates one participant to a voice call:
//  1. SENT -> CALL_CLAIMED as a conditional write; losing it means skipped.
//  2. place the call only once the claim is persisted.
//  3. CALL_CLAIMED -> CALL_TRIGGERED with the provider call id, or
//  4. CALL_CLAIMED -> CALL_FAILED on rejection or timeout. Never retried.
func (d *Dispatcher) ClaimAndCall(ctx context.Context, p *model.Participant, survey *model.Survey) DispatchResult {
	res := DispatchResult{ParticipantID: p.ParticipantID, BatchID: p.BatchID}

	claimedAt := d.now()
	won, err := d.Participants.Transition(ctx, p.ParticipantID,
		[]model.Status{model.StatusSent}, model.StatusCallClaimed,
		model.ParticipantPatch{ClaimedAt: &claimedAt}, claimedAt)
	if err != nil {
		// Fail closed: no claim, no call.
		log.Printf("⚠️ claim failed for participant %s, call not placed: %v", p.ParticipantID, err)
		res.Outcome = OutcomeError
		res.Reason = "claim failed: " + err.Error()
		return res
	}
	if !won {
		res.Outcome = OutcomeSkipped
		res.Reason = "participant no longer SENT"
		return res
	}

	// The claim is ours: settle it even if ctx is cancelled from here on.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if p.Phone == "" {
		d.fail(wctx, p.ParticipantID, "no_phone", "participant has no phone number")
		res.Outcome = OutcomeError
		res.Reason = "participant has no phone number"
		return res
	}

	log.Printf("📞 calling participant %s (batch %s)", p.ParticipantID, p.BatchID)
	call, err := d.Voice.PlaceCall(ctx, provider.CallRequest{
		SurveyID:      p.SurveyID,
		BatchID:       p.BatchID,
		ParticipantID: p.ParticipantID,
		Phone:         p.Phone,
		SurveyTitle:   survey.Title,
		Questions:     survey.Questions,
	})
	if err != nil {
		result := "rejected"
		switch {
		case errors.Is(err, appErrors.ErrProviderTimeout):
			result = "timeout"
			log.Printf("⏱️ voice provider timed out for participant %s: %v", p.ParticipantID, err)
		case appErrors.IsProviderFailure(err):
			log.Printf("⚠️ voice provider rejected call for participant %s: %v", p.ParticipantID, err)
		default:
			result = "error"
			log.Printf("❌ voice call for participant %s failed: %v", p.ParticipantID, err)
		}
		d.fail(wctx, p.ParticipantID, result, err.Error())
		res.Outcome = OutcomeError
		res.Reason = err.Error()
		return res
	}

	res.Outcome = OutcomeDispatched
	res.CallID = call.CallID

	calledAt := d.now()
	patch := model.ParticipantPatch{CallID: &call.CallID, CalledAt: &calledAt}
	won, err = d.Participants.Transition(wctx, p.ParticipantID,
		[]model.Status{model.StatusCallClaimed}, model.StatusCallTriggered, patch, calledAt)
	if err != nil {
		log.Printf("❌ call %s placed for participant %s but CALL_TRIGGERED was not persisted: %v", call.CallID, p.ParticipantID, err)
		res.Reason = "call placed, state not persisted"
		return res
	}
	if !won {
		res.Reason = d.settleLostTrigger(wctx, p, patch, calledAt)
	}
	return res
}

// settleLostTrigger handles a participant that left CALL_CLAIMED while the
// call was being placed. The current status is kept; the call id is recorded
// when nothing else has recorded one.
func (d *Dispatcher) settleLostTrigger(ctx context.Context, p *model.Participant, patch model.ParticipantPatch, at time.Time) string {
	callID := *patch.CallID
	cur, err := d.Participants.GetParticipant(ctx, p.SurveyID, p.BatchID, p.ParticipantID)
	if err != nil {
		log.Printf("❌ call %s placed for participant %s, status could not be re-read: %v", callID, p.ParticipantID, err)
		return "call placed, status unknown"
	}

	switch cur.Status {
	case model.StatusResponded:
		log.Printf("⚠️ participant %s responded while call %s was being placed", p.ParticipantID, callID)
	case model.StatusCallCompleted:
		log.Printf("ℹ️ call %s for participant %s completed before CALL_TRIGGERED was recorded", callID, p.ParticipantID)
	default:
		log.Printf("❌ call %s placed for participant %s but participant is %s", callID, p.ParticipantID, cur.Status)
	}

	if cur.CallID == "" {
		won, err := d.Participants.Transition(ctx, p.ParticipantID,
			[]model.Status{cur.Status}, cur.Status, patch, at)
		switch {
		case err != nil:
			log.Printf("❌ call %s placed for participant %s but call id was not recorded: %v", callID, p.ParticipantID, err)
		case !won:
			log.Printf("❌ call %s placed for participant %s but call id was not recorded: status changed from %s", callID, p.ParticipantID, cur.Status)
		}
	}
	return "participant " + string(cur.Status) + " before call was recorded"
}

func (d *Dispatcher) fail(ctx context.Context, participantID, result, reason string) {
	at := d.now()
	_, err := d.Participants.Transition(ctx, participantID,
		[]model.Status{model.StatusCallClaimed}, model.StatusCallFailed,
		model.ParticipantPatch{CallResult: &result, CallError: &reason}, at)
	if err != nil {
		log.Printf("❌ participant %s left in CALL_CLAIMED, could not record failure: %v", participantID, err)
	}
}
