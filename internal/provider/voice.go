package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	appErrors "github.com/unclebandit/survey-escalation/internal/errors"
	"github.com/unclebandit/survey-escalation/internal/model"
)

const voiceProvider = "voice"

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// VoiceClient places outbound survey calls through the voice provider's REST API.
type VoiceClient struct {
	BaseURL       string
	APIKey        string
	PhoneNumberID string
	Voice         string
	Timeout       time.Duration
	client        HTTPClient
}

// CallRequest is everything the assistant needs to run one survey call.
type CallRequest struct {
	SurveyID      string
	BatchID       string
	ParticipantID string
	Phone         string
	SurveyTitle   string
	Questions     []model.Question
}

type CallResult struct {
	CallID string `json:"id"`
	Status string `json:"status"`
}

func NewVoiceClient(baseURL, apiKey, phoneNumberID, voice string, timeout time.Duration, client HTTPClient) *VoiceClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &VoiceClient{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		APIKey:        apiKey,
		PhoneNumberID: phoneNumberID,
		Voice:         voice,
		Timeout:       timeout,
		client:        client,
	}
}

type callPayload struct {
	PhoneNumberID string             `json:"phoneNumberId,omitempty"`
	Customer      callCustomer       `json:"customer"`
	Assistant     callAssistant      `json:"assistant"`
	Metadata      model.CallMetadata `json:"metadata"`
}

type callCustomer struct {
	Number string `json:"number"`
}

type callAssistant struct {
	FirstMessage string          `json:"firstMessage"`
	Model        assistantModel  `json:"model"`
	Voice        *assistantVoice `json:"voice,omitempty"`
}

type assistantModel struct {
	Provider string             `json:"provider"`
	Model    string             `json:"model"`
	Messages []assistantMessage `json:"messages"`
}

type assistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type assistantVoice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

// PlaceCall posts a call request. The participant id is sent as the
// idempotency key and echoed back by the provider in every webhook.
func (c *VoiceClient) PlaceCall(ctx context.Context, req CallRequest) (*CallResult, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	payload := callPayload{
		PhoneNumberID: c.PhoneNumberID,
		Customer:      callCustomer{Number: req.Phone},
		Assistant: callAssistant{
			FirstMessage: fmt.Sprintf("Hi, I'm calling about the survey %q. Do you have a couple of minutes?", req.SurveyTitle),
			Model: assistantModel{
				Provider: "openai",
				Model:    "gpt-4o-mini",
				Messages: []assistantMessage{{Role: "system", Content: SurveyPrompt(req.SurveyTitle, req.Questions)}},
			},
		},
		Metadata: model.CallMetadata{
			SurveyID:      req.SurveyID,
			BatchID:       req.BatchID,
			ParticipantID: req.ParticipantID,
		},
	}
	if c.Voice != "" {
		payload.Assistant.Voice = &assistantVoice{Provider: "11labs", VoiceID: c.Voice}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Idempotency-Key", req.ParticipantID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %v", appErrors.ErrProviderTimeout, err)
		}
		return nil, appErrors.NewProviderRejected(voiceProvider, 0, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, appErrors.NewProviderRejected(voiceProvider, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out CallResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %v", appErrors.ErrProviderTimeout, err)
		}
		return nil, appErrors.NewProviderRejected(voiceProvider, resp.StatusCode, "invalid response body: "+err.Error())
	}
	if out.CallID == "" {
		return nil, appErrors.NewProviderRejected(voiceProvider, resp.StatusCode, "response carried no call id")
	}
	return &out, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// SurveyPrompt is the assistant system prompt for one survey.
func SurveyPrompt(title string, questions []model.Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly interviewer collecting answers for the survey %q.\n", title)
	b.WriteString("Ask the following questions one at a time and wait for each answer:\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, q.ID, q.Text)
	}
	b.WriteString("Thank the participant and end the call once every question has been answered or declined.")
	return b.String()
}
