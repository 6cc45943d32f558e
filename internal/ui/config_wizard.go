package ui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"starload/internal/pipeline"
	"starload/pkg/models"
)

// Asker is the part of survey the wizard uses
type Asker interface {
	Ask(qs []*survey.Question, response interface{}) error
	AskOne(p survey.Prompt, response interface{}) error
}

type surveyAsker struct{}

func (surveyAsker) Ask(qs []*survey.Question, response interface{}) error {
	return survey.Ask(qs, response)
}

func (surveyAsker) AskOne(p survey.Prompt, response interface{}) error {
	return survey.AskOne(p, response)
}

// ErrWizardCancelled is returned when the user aborts the wizard
var ErrWizardCancelled = fmt.Errorf("configuration cancelled")

// ConfigWizard provides an interactive configuration setup
type ConfigWizard struct {
	asker       Asker
	out         io.Writer
	currentStep int
	totalSteps  int
}

// WizardOption configures a ConfigWizard
type WizardOption func(*ConfigWizard)

// WithAsker replaces the terminal prompts
func WithAsker(a Asker) WizardOption {
	return func(w *ConfigWizard) { w.asker = a }
}

// WithWizardOutput redirects the step headers and review
func WithWizardOutput(out io.Writer) WizardOption {
	return func(w *ConfigWizard) { w.out = out }
}

// NewConfigWizard creates a new configuration wizard
func NewConfigWizard(opts ...WizardOption) *ConfigWizard {
	w := &ConfigWizard{
		asker:       surveyAsker{},
		out:         os.Stdout,
		currentStep: 1,
		totalSteps:  5,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run walks through every step. Values already in base are offered as
// defaults; base itself is not modified.
func (w *ConfigWizard) Run(base *models.Config) (*models.Config, error) {
	cfg := &models.Config{}
	if base != nil {
		*cfg = *base
	}

	steps := []func(*models.Config) error{
		w.configureWarehouseStep,
		w.configureConnectionStep,
		w.configureSourcesStep,
		w.configureLoadStep,
		w.reviewConfiguration,
	}
	for _, step := range steps {
		if err := step(cfg); err != nil {
			if err == terminal.InterruptErr {
				return nil, ErrWizardCancelled
			}
			return nil, err
		}
	}
	return cfg, nil
}

func (w *ConfigWizard) configureWarehouseStep(cfg *models.Config) error {
	w.showProgress("Target Warehouse")

	dialect := cfg.Warehouse.Dialect
	if dialect == "" {
		dialect = "redshift"
	}
	prompt := &survey.Select{
		Message: "Warehouse engine:",
		Options: []string{"redshift", "snowflake", "sqlite"},
		Default: dialect,
		Help:    "sqlite loads a local file for development; the others bulk-load from S3",
	}
	if err := w.asker.AskOne(prompt, &dialect); err != nil {
		return err
	}
	cfg.Warehouse.Dialect = dialect

	w.currentStep++
	return nil
}

func (w *ConfigWizard) configureConnectionStep(cfg *models.Config) error {
	w.showProgress("Connection")
	wh := &cfg.Warehouse

	switch wh.Dialect {
	case "sqlite":
		path := wh.Path
		if path == "" {
			path = "starload.db"
		}
		prompt := &survey.Input{
			Message: "Database file:",
			Default: path,
			Help:    "Use :memory: for a throwaway database",
		}
		if err := w.asker.AskOne(prompt, &path); err != nil {
			return err
		}
		wh.Path = path

	case "snowflake":
		answers := struct {
			Account   string `survey:"account"`
			User      string `survey:"user"`
			Password  string `survey:"password"`
			Database  string `survey:"database"`
			Warehouse string `survey:"warehouse"`
			Role      string `survey:"role"`
		}{}
		questions := []*survey.Question{
			{Name: "account", Prompt: &survey.Input{Message: "Account:", Default: wh.Account, Help: "e.g. xy12345.us-west-2"}, Validate: survey.Required},
			{Name: "user", Prompt: &survey.Input{Message: "User:", Default: wh.User}, Validate: survey.Required},
			{Name: "password", Prompt: &survey.Password{Message: "Password:", Help: "Stored in the OS keyring when possible"}},
			{Name: "database", Prompt: &survey.Input{Message: "Database:", Default: defaultString(wh.Database, "SPARKIFY")}, Validate: survey.Required},
			{Name: "warehouse", Prompt: &survey.Input{Message: "Warehouse:", Default: defaultString(wh.Warehouse, "COMPUTE_WH")}, Validate: survey.Required},
			{Name: "role", Prompt: &survey.Input{Message: "Role:", Default: defaultString(wh.Role, "SYSADMIN")}},
		}
		if err := w.asker.Ask(questions, &answers); err != nil {
			return err
		}
		wh.Account, wh.User, wh.Database = answers.Account, answers.User, answers.Database
		wh.Warehouse, wh.Role = answers.Warehouse, answers.Role
		if answers.Password != "" {
			wh.Password = answers.Password
		}

	default:
		answers := struct {
			Host     string `survey:"host"`
			Port     string `survey:"port"`
			Database string `survey:"database"`
			User     string `survey:"user"`
			Password string `survey:"password"`
		}{}
		port := "5439"
		if wh.Port > 0 {
			port = strconv.Itoa(wh.Port)
		}
		questions := []*survey.Question{
			{Name: "host", Prompt: &survey.Input{Message: "Cluster endpoint:", Default: wh.Host, Help: "e.g. dwhcluster.abc123.us-west-2.redshift.amazonaws.com"}, Validate: survey.Required},
			{Name: "port", Prompt: &survey.Input{Message: "Port:", Default: port}, Validate: validatePort},
			{Name: "database", Prompt: &survey.Input{Message: "Database:", Default: defaultString(wh.Database, "dwh")}, Validate: survey.Required},
			{Name: "user", Prompt: &survey.Input{Message: "User:", Default: defaultString(wh.User, "dwhuser")}, Validate: survey.Required},
			{Name: "password", Prompt: &survey.Password{Message: "Password:", Help: "Stored in the OS keyring when possible"}},
		}
		if err := w.asker.Ask(questions, &answers); err != nil {
			return err
		}
		n, err := strconv.Atoi(answers.Port)
		if err != nil {
			return fmt.Errorf("invalid port %q", answers.Port)
		}
		wh.Host, wh.Port, wh.Database, wh.User = answers.Host, n, answers.Database, answers.User
		if answers.Password != "" {
			wh.Password = answers.Password
		}
	}

	w.currentStep++
	return nil
}

func (w *ConfigWizard) configureSourcesStep(cfg *models.Config) error {
	w.showProgress("Data Sources")

	answers := struct {
		LogData     string `survey:"log_data"`
		SongData    string `survey:"song_data"`
		LogJSONPath string `survey:"log_jsonpath"`
		Region      string `survey:"region"`
		ARN         string `survey:"arn"`
	}{}

	local := cfg.Warehouse.Dialect == "sqlite"
	questions := []*survey.Question{
		{Name: "log_data", Prompt: &survey.Input{Message: "Event log location:", Default: defaultString(cfg.S3.LogData, "s3://udacity-dend/log_data")}, Validate: survey.Required},
		{Name: "song_data", Prompt: &survey.Input{Message: "Song data location:", Default: defaultString(cfg.S3.SongData, "s3://udacity-dend/song_data")}, Validate: survey.Required},
		{Name: "log_jsonpath", Prompt: &survey.Input{Message: "Event JSONPaths file:", Default: defaultString(cfg.S3.LogJSONPath, "s3://udacity-dend/log_json_path.json"), Help: "Leave empty to match fields by name"}},
		{Name: "region", Prompt: &survey.Input{Message: "Bucket region:", Default: defaultString(cfg.S3.Region, "us-west-2")}},
	}
	if !local {
		questions = append(questions, &survey.Question{
			Name:     "arn",
			Prompt:   &survey.Input{Message: "IAM role ARN:", Default: cfg.IAMRole.ARN, Help: "The role the warehouse assumes to read the bucket"},
			Validate: validateARN,
		})
	}
	if err := w.asker.Ask(questions, &answers); err != nil {
		return err
	}

	cfg.S3.LogData, cfg.S3.SongData, cfg.S3.LogJSONPath = answers.LogData, answers.SongData, answers.LogJSONPath
	cfg.S3.Region = answers.Region
	if !local {
		cfg.IAMRole.ARN = answers.ARN
	}

	w.currentStep++
	return nil
}

func (w *ConfigWizard) configureLoadStep(cfg *models.Config) error {
	w.showProgress("Load Settings")

	txMode := defaultString(cfg.Load.TxMode, string(pipeline.TxStage))
	prompt := &survey.Select{
		Message: "Transaction boundary:",
		Options: []string{string(pipeline.TxStage), string(pipeline.TxBatch), string(pipeline.TxNone)},
		Default: txMode,
		Help:    "stage commits after each stage, batch commits once at the end, none autocommits",
	}
	if err := w.asker.AskOne(prompt, &txMode); err != nil {
		return err
	}
	cfg.Load.TxMode = txMode

	w.currentStep++
	return nil
}

func (w *ConfigWizard) reviewConfiguration(cfg *models.Config) error {
	w.showProgress("Review Configuration")

	fmt.Fprintln(w.out, "\n"+ColorInfo("Configuration Summary:"))
	fmt.Fprintln(w.out, strings.Repeat("─", 50))

	wh := cfg.Warehouse
	fmt.Fprintln(w.out, ColorBold("\nWarehouse:"))
	fmt.Fprintf(w.out, "  Engine:    %s\n", wh.Dialect)
	switch wh.Dialect {
	case "sqlite":
		fmt.Fprintf(w.out, "  File:      %s\n", wh.Path)
	case "snowflake":
		fmt.Fprintf(w.out, "  Account:   %s\n", wh.Account)
		fmt.Fprintf(w.out, "  User:      %s\n", wh.User)
		fmt.Fprintf(w.out, "  Warehouse: %s\n", wh.Warehouse)
	default:
		fmt.Fprintf(w.out, "  Endpoint:  %s:%d/%s\n", wh.Host, wh.Port, wh.Database)
		fmt.Fprintf(w.out, "  User:      %s\n", wh.User)
	}

	fmt.Fprintln(w.out, ColorBold("\nSources:"))
	fmt.Fprintf(w.out, "  Events:    %s\n", cfg.S3.LogData)
	fmt.Fprintf(w.out, "  Songs:     %s\n", cfg.S3.SongData)
	fmt.Fprintf(w.out, "  JSONPaths: %s\n", defaultString(cfg.S3.LogJSONPath, "auto"))
	if cfg.IAMRole.ARN != "" {
		fmt.Fprintf(w.out, "  IAM role:  %s\n", cfg.IAMRole.ARN)
	}
	fmt.Fprintf(w.out, "\n  Transactions: %s\n", cfg.Load.TxMode)
	fmt.Fprintln(w.out, strings.Repeat("─", 50))

	confirm := false
	prompt := &survey.Confirm{
		Message: "Save this configuration?",
		Default: true,
	}
	if err := w.asker.AskOne(prompt, &confirm); err != nil {
		return err
	}
	if !confirm {
		return ErrWizardCancelled
	}

	w.currentStep++
	return nil
}

func (w *ConfigWizard) showProgress(step string) {
	fmt.Fprintf(w.out, "\n%s [Step %d/%d] %s\n\n",
		ColorProgress("►"),
		w.currentStep,
		w.totalSteps,
		ColorBold(step),
	)
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func validatePort(val interface{}) error {
	s, _ := val.(string)
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}

func validateARN(val interface{}) error {
	s, _ := val.(string)
	if !strings.HasPrefix(s, "arn:") {
		return fmt.Errorf("expected an ARN such as arn:aws:iam::123456789012:role/dwhRole")
	}
	return nil
}
