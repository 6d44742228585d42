// internal/service/template_service.go
package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/token"
)

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

type emailTemplate struct {
	Subject string
	Body    string
}

var emailTemplates = map[model.ReminderType]emailTemplate{
	model.ReminderOpening: {
		Subject: "You're invited: {title}",
		Body:    "Hello,\n\nWe'd love your feedback on \"{title}\". The survey is open until {end_date}.\n\n{link}\n\nThank you!",
	},
	model.ReminderMidpoint: {
		Subject: "Reminder: {title}",
		Body:    "Hello,\n\nThe survey \"{title}\" is halfway through and we haven't heard from you yet.\n\n{link}",
	},
	model.ReminderOneThird: {
		Subject: "Reminder: {title}",
		Body:    "Hello,\n\nThere is still time to answer \"{title}\". It closes on {end_date}.\n\n{link}",
	},
	model.ReminderWeekBefore: {
		Subject: "One week left: {title}",
		Body:    "Hello,\n\n\"{title}\" closes in a week, on {end_date}.\n\n{link}",
	},
	model.ReminderDayBefore: {
		Subject: "Closing tomorrow: {title}",
		Body:    "Hello,\n\n\"{title}\" closes tomorrow. It only takes a few minutes.\n\n{link}",
	},
	model.ReminderClosing: {
		Subject: "Last day: {title}",
		Body:    "Hello,\n\nToday is the last day to answer \"{title}\".\n\n{link}",
	},
	model.ReminderFinalHours: {
		Subject: "Final hours: {title}",
		Body:    "Hello,\n\n\"{title}\" closes in a couple of hours.\n\n{link}",
	},
}

// RenderEmail builds the subject and body for one reminder type.
func RenderEmail(reminder model.ReminderType, survey *model.Survey, link string) (subject, body string) {
	tpl, ok := emailTemplates[reminder]
	if !ok {
		tpl = emailTemplates[model.ReminderOpening]
	}
	data := map[string]string{
		"title":    survey.Title,
		"link":     link,
		"end_date": survey.EndDate.Format("January 2, 2006"),
	}
	return RenderTemplate(tpl.Subject, data), RenderTemplate(tpl.Body, data)
}

// LinkBuilder personalizes survey links with a signed participant token.
type LinkBuilder struct {
	BaseURL string
	Tokens  *token.Signer
}

// Link returns <base>/survey/<surveyId>?t=<token>&participantId=<id>.
func (l *LinkBuilder) Link(p *model.Participant) (string, error) {
	tok, err := l.Tokens.Sign(p.SurveyID, p.BatchID, p.ParticipantID)
	if err != nil {
		return "", fmt.Errorf("sign survey token: %w", err)
	}
	q := url.Values{}
	q.Set("t", tok)
	q.Set("participantId", p.ParticipantID)
	return fmt.Sprintf("%s/survey/%s?%s", strings.TrimRight(l.BaseURL, "/"), url.PathEscape(p.SurveyID), q.Encode()), nil
}
