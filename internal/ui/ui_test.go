package ui

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/core"
	"github.com/AlecAivazis/survey/v2/terminal"

	"starload/internal/pipeline"
	"starload/pkg/models"
)

func TestUIQuiet(t *testing.T) {
	var buf bytes.Buffer
	u := NewUI(false, true)
	u.SetOutput(&buf)

	u.Printf("hello %s\n", "world")
	u.Success("done")
	u.Section("Summary")

	if buf.Len() != 0 {
		t.Errorf("quiet mode printed %q", buf.String())
	}
	fmt.Fprint(u.Out(), "discarded")
	if buf.Len() != 0 {
		t.Error("Out() should discard in quiet mode")
	}
}

func TestUIVerbose(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	u := NewUI(false, false)
	u.SetOutput(&buf)
	u.VerbosePrintf("hidden\n")
	u.KeyValue("Dialect", "redshift")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("verbose output printed without --verbose")
	}
	if !strings.Contains(buf.String(), "Dialect:") {
		t.Errorf("missing key/value, got %q", buf.String())
	}

	u.Verbose = true
	u.VerbosePrintf("shown\n")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("verbose output missing")
	}
}

func TestProgressBarObserve(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	pb := NewProgressBar(&buf, 4)

	pb.Observe(pipeline.StatementResult{Order: 1, Name: "copy_staging_songs"})
	pb.Observe(pipeline.StatementResult{Order: 2, Name: "copy_staging_events", Err: errors.New("boom")})

	if pb.current != 2 || pb.successCount != 1 || pb.failureCount != 1 {
		t.Errorf("unexpected counters: current=%d ok=%d failed=%d", pb.current, pb.successCount, pb.failureCount)
	}
	if !strings.Contains(buf.String(), "50%") || !strings.Contains(buf.String(), "copy_staging_events") {
		t.Errorf("unexpected render: %q", buf.String())
	}

	pb.Finish()
	if !strings.Contains(buf.String(), "1 failed") {
		t.Errorf("finish should report failures: %q", buf.String())
	}
}

func TestProgressBarConcurrentUpdates(t *testing.T) {
	pb := NewProgressBar(&bytes.Buffer{}, 100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pb.Update(i, "statement", true)
		}(i)
	}
	wg.Wait()

	if pb.successCount != 10 {
		t.Errorf("expected 10 updates, got %d", pb.successCount)
	}
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "connecting")
	s.Start()
	s.UpdateMessage("still connecting")
	s.Stop(true, "connected")
	s.Stop(false, "again")

	if strings.Contains(buf.String(), "again") {
		t.Error("second Stop should do nothing")
	}
}

// scriptedAsker answers prompts from a script keyed by question name or,
// for single prompts, by message.
type scriptedAsker struct {
	answers map[string]interface{}
	err     error
	asked   []string
}

func (s *scriptedAsker) Ask(qs []*survey.Question, response interface{}) error {
	if s.err != nil {
		return s.err
	}
	for _, q := range qs {
		s.asked = append(s.asked, q.Name)
		v, ok := s.answers[q.Name]
		if !ok {
			v = ""
		}
		if q.Validate != nil {
			if err := q.Validate(v); err != nil {
				return err
			}
		}
		if err := core.WriteAnswer(response, q.Name, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *scriptedAsker) AskOne(p survey.Prompt, response interface{}) error {
	if s.err != nil {
		return s.err
	}
	var message string
	switch prompt := p.(type) {
	case *survey.Select:
		message = prompt.Message
	case *survey.Input:
		message = prompt.Message
	case *survey.Confirm:
		message = prompt.Message
	}
	s.asked = append(s.asked, message)
	v, ok := s.answers[message]
	if !ok {
		return nil
	}
	return core.WriteAnswer(response, "", v)
}

func TestConfigWizardRedshift(t *testing.T) {
	asker := &scriptedAsker{answers: map[string]interface{}{
		"Warehouse engine:":        "redshift",
		"host":                     "dwhcluster.abc123.us-west-2.redshift.amazonaws.com",
		"port":                     "5439",
		"database":                 "dwh",
		"user":                     "dwhuser",
		"password":                 "Passw0rd",
		"log_data":                 "s3://udacity-dend/log_data",
		"song_data":                "s3://udacity-dend/song_data",
		"log_jsonpath":             "s3://udacity-dend/log_json_path.json",
		"region":                   "us-west-2",
		"arn":                      "arn:aws:iam::123456789012:role/dwhRole",
		"Transaction boundary:":    "batch",
		"Save this configuration?": true,
	}}
	var out bytes.Buffer

	cfg, err := NewConfigWizard(WithAsker(asker), WithWizardOutput(&out)).Run(nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := models.Warehouse{
		Dialect:  "redshift",
		Host:     "dwhcluster.abc123.us-west-2.redshift.amazonaws.com",
		Port:     5439,
		Database: "dwh",
		User:     "dwhuser",
		Password: "Passw0rd",
	}
	if cfg.Warehouse != want {
		t.Errorf("warehouse = %+v, want %+v", cfg.Warehouse, want)
	}
	if cfg.IAMRole.ARN != "arn:aws:iam::123456789012:role/dwhRole" {
		t.Errorf("unexpected ARN %q", cfg.IAMRole.ARN)
	}
	if cfg.Load.TxMode != "batch" {
		t.Errorf("unexpected tx mode %q", cfg.Load.TxMode)
	}
	if !strings.Contains(out.String(), "[Step 5/5] ") {
		t.Errorf("expected five steps, got:\n%s", out.String())
	}
}

func TestConfigWizardSQLiteSkipsRole(t *testing.T) {
	asker := &scriptedAsker{answers: map[string]interface{}{
		"Warehouse engine:":        "sqlite",
		"Database file:":           ":memory:",
		"log_data":                 "./data/log_data",
		"song_data":                "./data/song_data",
		"Save this configuration?": true,
	}}

	cfg, err := NewConfigWizard(WithAsker(asker), WithWizardOutput(&bytes.Buffer{})).Run(nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if cfg.Warehouse.Path != ":memory:" {
		t.Errorf("unexpected path %q", cfg.Warehouse.Path)
	}
	for _, q := range asker.asked {
		if q == "arn" {
			t.Error("sqlite loads client-side and needs no IAM role")
		}
	}
}

func TestConfigWizardKeepsExistingPassword(t *testing.T) {
	base := &models.Config{Warehouse: models.Warehouse{Dialect: "snowflake", Password: "kept"}}
	asker := &scriptedAsker{answers: map[string]interface{}{
		"account":                  "xy12345.us-west-2",
		"user":                     "loader",
		"database":                 "SPARKIFY",
		"warehouse":                "COMPUTE_WH",
		"log_data":                 "s3://udacity-dend/log_data",
		"song_data":                "s3://udacity-dend/song_data",
		"arn":                      "arn:aws:iam::123456789012:role/dwhRole",
		"Save this configuration?": true,
	}}

	cfg, err := NewConfigWizard(WithAsker(asker), WithWizardOutput(&bytes.Buffer{})).Run(base)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if cfg.Warehouse.Password != "kept" {
		t.Errorf("an empty answer should keep the stored password, got %q", cfg.Warehouse.Password)
	}
	if base.Warehouse.Account != "" {
		t.Error("the base configuration must not be modified")
	}
}

func TestConfigWizardRejectsBadARN(t *testing.T) {
	asker := &scriptedAsker{answers: map[string]interface{}{
		"Warehouse engine:": "redshift",
		"host":              "localhost",
		"port":              "5439",
		"database":          "dwh",
		"user":              "dwhuser",
		"log_data":          "s3://udacity-dend/log_data",
		"song_data":         "s3://udacity-dend/song_data",
		"arn":               "dwhRole",
	}}

	_, err := NewConfigWizard(WithAsker(asker), WithWizardOutput(&bytes.Buffer{})).Run(nil)
	if err == nil || !strings.Contains(err.Error(), "ARN") {
		t.Errorf("expected an ARN validation error, got %v", err)
	}
}

func TestConfigWizardCancel(t *testing.T) {
	_, err := NewConfigWizard(WithAsker(&scriptedAsker{err: terminal.InterruptErr}), WithWizardOutput(&bytes.Buffer{})).Run(nil)
	if err != ErrWizardCancelled {
		t.Errorf("expected ErrWizardCancelled, got %v", err)
	}

	declined := &scriptedAsker{answers: map[string]interface{}{
		"Warehouse engine:":        "sqlite",
		"log_data":                 "./log_data",
		"song_data":                "./song_data",
		"Save this configuration?": false,
	}}
	_, err = NewConfigWizard(WithAsker(declined), WithWizardOutput(&bytes.Buffer{})).Run(nil)
	if err != ErrWizardCancelled {
		t.Errorf("declining the review should cancel, got %v", err)
	}
}

func TestValidatePort(t *testing.T) {
	for _, ok := range []string{"5439", "1", "65535"} {
		if err := validatePort(ok); err != nil {
			t.Errorf("validatePort(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "0", "65536", "abc"} {
		if err := validatePort(bad); err == nil {
			t.Errorf("validatePort(%q) should fail", bad)
		}
	}
}
