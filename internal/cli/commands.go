package cli

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/unclebandit/survey-escalation/internal/controller"
	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/service"
)

// TriggerCmd returns the trigger command
func TriggerCmd(opts *Options) *cobra.Command {
	var surveyID, batchID string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run an escalation pass now",
		Long: `Ask the server to escalate immediately.

Without --survey every batch past its delay is processed. With --survey the
survey's batches (or only --batch) are processed regardless of their delay.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchID != "" && surveyID == "" {
				return fmt.Errorf("--batch requires --survey")
			}
			var report struct {
				service.EscalationReport
				Error string `json:"error"`
			}
			in := map[string]string{"surveyId": surveyID, "batchId": batchID}
			if err := opts.client().do(cmd.Context(), "POST", "/trigger-escalation", in, &report); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Escalation: %s dispatched, %s failed, %s skipped\n",
				color.New(color.FgGreen).Sprint(report.Successful),
				color.New(color.FgRed).Sprint(report.Failed),
				color.New(color.FgYellow).Sprint(report.Skipped))
			for _, d := range report.Details {
				line := fmt.Sprintf("  %-10s batch=%s", outcomeLabel(d.Outcome), d.BatchID)
				if d.ParticipantID != "" {
					line += " participant=" + d.ParticipantID
				}
				if d.CallID != "" {
					line += " call=" + d.CallID
				}
				if d.Reason != "" {
					line += " (" + d.Reason + ")"
				}
				fmt.Fprintln(out, line)
			}
			if report.Error != "" {
				return fmt.Errorf("escalation pass incomplete: %s", report.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&surveyID, "survey", "", "Survey ID to escalate")
	cmd.Flags().StringVar(&batchID, "batch", "", "Batch ID within the survey")
	return cmd
}

// SchedulesCmd returns the schedules command
func SchedulesCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "schedules",
		Short: "List batches waiting for voice escalation",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Data []service.BatchSchedule `json:"data"`
			}
			if err := opts.client().do(cmd.Context(), "GET", "/schedules", nil, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Data) == 0 {
				fmt.Fprintln(out, "No pending escalations.")
				return nil
			}
			for _, s := range resp.Data {
				due := "due now"
				if !s.IsDue {
					due = "in " + s.TimeUntilDue
				}
				fmt.Fprintf(out, "%s  %s/%s  %s  sent=%d\n",
					stateLabel(s.State), s.SurveyID, s.BatchID, due, s.Counts[model.StatusSent])
			}
			return nil
		},
	}
}

// ParticipantsCmd returns the participants command
func ParticipantsCmd(opts *Options) *cobra.Command {
	var surveyID, batchID string

	cmd := &cobra.Command{
		Use:   "participants",
		Short: "Show participant status for a survey",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/surveys/" + url.PathEscape(surveyID) + "/participants"
			if batchID != "" {
				path += "?batchId=" + url.QueryEscape(batchID)
			}
			var resp struct {
				Data  []model.Participant  `json:"data"`
				Stats map[model.Status]int `json:"stats"`
			}
			if err := opts.client().do(cmd.Context(), "GET", path, nil, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, p := range resp.Data {
				line := fmt.Sprintf("%s  %s  %s", statusLabel(p.Status), p.ParticipantID, p.Email)
				if p.CallResult != "" {
					line += "  call=" + p.CallResult
				}
				fmt.Fprintln(out, line)
			}

			statuses := make([]string, 0, len(resp.Stats))
			for s := range resp.Stats {
				statuses = append(statuses, string(s))
			}
			sort.Strings(statuses)
			fmt.Fprintf(out, "\n%d participants", len(resp.Data))
			for _, s := range statuses {
				fmt.Fprintf(out, "  %s=%d", s, resp.Stats[model.Status(s)])
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&surveyID, "survey", "", "Survey ID")
	cmd.Flags().StringVar(&batchID, "batch", "", "Limit to one batch")
	_ = cmd.MarkFlagRequired("survey")
	return cmd
}

// PlanCmd returns the plan command. It computes reminder dates locally.
func PlanCmd() *cobra.Command {
	var start, end, timezone string
	var sendHour int

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview the reminder schedule for a survey window",
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := controller.ParseDate(start)
			if err != nil {
				return err
			}
			endDate, err := controller.ParseDate(end)
			if err != nil {
				return err
			}
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("unknown timezone %q: %w", timezone, err)
			}

			sched := service.PlanReminders(startDate, endDate, loc, sendHour)
			out := cmd.OutOrStdout()
			if len(sched.Dates) == 0 {
				fmt.Fprintln(out, "No reminders: the window is empty.")
				return nil
			}
			for _, d := range sched.Dates {
				fmt.Fprintf(out, "%s  %-12s %s\n", d.Date, d.Type, d.At.In(loc).Format("15:04 MST"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Survey start date (2006-01-02)")
	cmd.Flags().StringVar(&end, "end", "", "Survey end date (2006-01-02)")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA timezone of the survey")
	cmd.Flags().IntVar(&sendHour, "send-hour", 9, "Local hour reminders go out")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func statusLabel(s model.Status) string {
	label := fmt.Sprintf("%-14s", s)
	switch s {
	case model.StatusResponded, model.StatusCallCompleted:
		return color.New(color.FgGreen).Sprint(label)
	case model.StatusCallFailed:
		return color.New(color.FgRed).Sprint(label)
	case model.StatusCallClaimed, model.StatusCallTriggered:
		return color.New(color.FgYellow).Sprint(label)
	}
	return label
}

func stateLabel(s model.BatchState) string {
	label := fmt.Sprintf("%-9s", s)
	switch s {
	case model.BatchDue:
		return color.New(color.FgYellow).Sprint(label)
	case model.BatchProcessed:
		return color.New(color.FgBlue).Sprint(label)
	}
	return label
}

func outcomeLabel(o service.Outcome) string {
	switch o {
	case service.OutcomeDispatched:
		return color.New(color.FgGreen).Sprint(o)
	case service.OutcomeError:
		return color.New(color.FgRed).Sprint(o)
	}
	return string(o)
}
