package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	color.NoColor = true
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTriggerSendsKeyAndBody(t *testing.T) {
	var gotKey string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/trigger-escalation" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("X-API-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"successful":1,"failed":0,"skipped":1,"details":[
			{"participant_id":"p1","batch_id":"b1","outcome":"dispatched","call_id":"call-9"},
			{"participant_id":"p2","batch_id":"b1","outcome":"skipped","reason":"already claimed"}]}`))
	}))
	defer srv.Close()

	opts := &Options{Server: srv.URL, APIKey: "op-key"}
	out, err := run(t, TriggerCmd(opts), "--survey", "s1", "--batch", "b1")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if gotKey != "op-key" {
		t.Errorf("X-API-Key = %q", gotKey)
	}
	if gotBody["surveyId"] != "s1" || gotBody["batchId"] != "b1" {
		t.Errorf("body = %v", gotBody)
	}
	if !strings.Contains(out, "1 dispatched, 0 failed, 1 skipped") || !strings.Contains(out, "call=call-9") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestTriggerBatchNeedsSurvey(t *testing.T) {
	if _, err := run(t, TriggerCmd(&Options{Server: "http://unused"}), "--batch", "b1"); err == nil {
		t.Fatal("expected error for --batch without --survey")
	}
}

func TestTriggerSurfacesPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"successful":0,"failed":0,"skipped":0,"details":[],"error":"store unavailable"}`))
	}))
	defer srv.Close()

	_, err := run(t, TriggerCmd(&Options{Server: srv.URL}))
	if err == nil || !strings.Contains(err.Error(), "store unavailable") {
		t.Fatalf("expected partial failure error, got %v", err)
	}
}

func TestSchedulesListsBatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"batch_id":"b1","survey_id":"s1","state":"DUE","isDue":true,"counts":{"SENT":3}},
			{"batch_id":"b2","survey_id":"s1","state":"WAITING","isDue":false,"timeUntilDue":"5h0m0s","counts":{"SENT":1}}]}`))
	}))
	defer srv.Close()

	out, err := run(t, SchedulesCmd(&Options{Server: srv.URL}))
	if err != nil {
		t.Fatalf("schedules: %v", err)
	}
	if !strings.Contains(out, "s1/b1  due now  sent=3") {
		t.Errorf("due batch missing:\n%s", out)
	}
	if !strings.Contains(out, "s1/b2  in 5h0m0s  sent=1") {
		t.Errorf("waiting batch missing:\n%s", out)
	}
}

func TestParticipantsShowsStats(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"data":[
			{"participant_id":"p1","email":"a@example.com","status":"RESPONDED"},
			{"participant_id":"p2","email":"b@example.com","status":"CALL_FAILED","call_result":"timeout"}],
			"stats":{"RESPONDED":1,"CALL_FAILED":1}}`))
	}))
	defer srv.Close()

	out, err := run(t, ParticipantsCmd(&Options{Server: srv.URL}), "--survey", "s1", "--batch", "b1")
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if gotQuery != "batchId=b1" {
		t.Errorf("query = %q", gotQuery)
	}
	if !strings.Contains(out, "call=timeout") || !strings.Contains(out, "CALL_FAILED=1  RESPONDED=1") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestClientReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer srv.Close()

	_, err := run(t, SchedulesCmd(&Options{Server: srv.URL}))
	if err == nil || !strings.Contains(err.Error(), "401 unauthorized") {
		t.Fatalf("expected 401 error, got %v", err)
	}
}

func TestPlanPrintsSchedule(t *testing.T) {
	out, err := run(t, PlanCmd(), "--start", "2024-03-01", "--end", "2024-03-08")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for _, want := range []string{"2024-03-04  midpoint", "2024-03-08  closing"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPlanRejectsBadTimezone(t *testing.T) {
	if _, err := run(t, PlanCmd(), "--start", "2024-03-01", "--end", "2024-03-08", "--timezone", "Mars/Base"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}
