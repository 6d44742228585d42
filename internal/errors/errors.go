// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is returned for malformed, expired or unknown submission tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnauthorized is returned when a webhook signature or operator key does not verify.
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrProviderTimeout marks a provider call that ran past its deadline.
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrAlreadyProcessed is an outcome, not a failure: the target state was already reached.
	ErrAlreadyProcessed = errors.New("already processed")
)

// ErrBatchNotFound is returned when a batch does not exist for the survey.
type ErrBatchNotFound struct {
	SurveyID string
	BatchID  string
}

func (e *ErrBatchNotFound) Error() string {
	return fmt.Sprintf("batch %s not found for survey %s", e.BatchID, e.SurveyID)
}

func (e *ErrBatchNotFound) Unwrap() error { return ErrNotFound }

func NewBatchNotFound(surveyID, batchID string) error {
	return &ErrBatchNotFound{SurveyID: surveyID, BatchID: batchID}
}

type ErrParticipantNotFound struct {
	ParticipantID string
}

func (e *ErrParticipantNotFound) Error() string {
	return fmt.Sprintf("participant %s not found", e.ParticipantID)
}

func (e *ErrParticipantNotFound) Unwrap() error { return ErrNotFound }

func NewParticipantNotFound(id string) error {
	return &ErrParticipantNotFound{ParticipantID: id}
}

type ErrSurveyNotFound struct {
	SurveyID string
}

func (e *ErrSurveyNotFound) Error() string {
	return fmt.Sprintf("survey %s not found", e.SurveyID)
}

func (e *ErrSurveyNotFound) Unwrap() error { return ErrNotFound }

func NewSurveyNotFound(id string) error {
	return &ErrSurveyNotFound{SurveyID: id}
}

// ErrProviderRejected is a call or email provider refusing a request.
type ErrProviderRejected struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ErrProviderRejected) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s rejected request (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s rejected request: %s", e.Provider, e.Message)
}

func NewProviderRejected(provider string, status int, msg string) error {
	return &ErrProviderRejected{Provider: provider, StatusCode: status, Message: msg}
}

// IsProviderFailure reports whether err is a provider rejection or timeout.
func IsProviderFailure(err error) bool {
	var rejected *ErrProviderRejected
	return errors.As(err, &rejected) || errors.Is(err, ErrProviderTimeout)
}
