// Package token signs and verifies the opaque tokens embedded in survey links.
package token

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
)

// Claims binds a link to exactly one participant of one batch.
type Claims struct {
	SurveyID string `json:"sid"`
	BatchID  string `json:"bid"`
	jwt.RegisteredClaims
}

func (c *Claims) ParticipantID() string { return c.Subject }

type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the signer's time source. Used by tests.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign issues a token for participantID valid until the signer's TTL elapses.
func (s *Signer) Sign(surveyID, batchID, participantID string) (string, error) {
	now := s.now()
	claims := Claims{
		SurveyID: surveyID,
		BatchID:  batchID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign survey token: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns its claims. Any failure is reported as ErrInvalidToken.
func (s *Signer) Parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, appErrors.ErrInvalidToken
	}
	t, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErrors.ErrInvalidToken, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, appErrors.ErrInvalidToken
	}
	if c.Subject == "" || c.BatchID == "" || c.SurveyID == "" {
		return nil, fmt.Errorf("%w: %v", appErrors.ErrInvalidToken, errors.New("missing claims"))
	}
	return c, nil
}
