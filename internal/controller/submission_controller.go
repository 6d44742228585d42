package controller

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/service"
)

type SubmissionController struct {
	Responses *service.ResponseService
}

// Submit records a respondent's answers. The token comes from the link's
// t query parameter or the request body; it alone identifies the participant.
func (c *SubmissionController) Submit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token   string          `json:"token"`
		Answers json.RawMessage `json:"answers"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	tok := r.URL.Query().Get("t")
	if tok == "" {
		tok = body.Token
	}
	if tok == "" {
		writeError(w, fmt.Errorf("%w: missing token", appErrors.ErrInvalidToken))
		return
	}

	ack, err := c.Responses.RecordSubmission(r.Context(), chi.URLParam(r, "surveyId"), tok, body.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}
