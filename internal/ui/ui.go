package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

// UI writes user-facing output honoring --verbose and --quiet
type UI struct {
	Verbose bool
	Quiet   bool
	out     io.Writer
	spinner *Spinner
}

// NewUI creates a new UI instance
func NewUI(verbose, quiet bool) *UI {
	return &UI{
		Verbose: verbose,
		Quiet:   quiet,
		out:     os.Stdout,
	}
}

// SetOutput redirects output
func (u *UI) SetOutput(w io.Writer) {
	u.out = w
}

// Out returns the writer output goes to. Quiet mode discards it.
func (u *UI) Out() io.Writer {
	if u.Quiet {
		return io.Discard
	}
	return u.out
}

// Printf prints formatted output if not in quiet mode
func (u *UI) Printf(format string, args ...interface{}) {
	if !u.Quiet {
		fmt.Fprintf(u.out, format, args...)
	}
}

// Println prints a line if not in quiet mode
func (u *UI) Println(args ...interface{}) {
	if !u.Quiet {
		fmt.Fprintln(u.out, args...)
	}
}

// VerbosePrintf prints formatted output only in verbose mode
func (u *UI) VerbosePrintf(format string, args ...interface{}) {
	if u.Verbose && !u.Quiet {
		fmt.Fprintf(u.out, format, args...)
	}
}

// StartProgress starts a spinner with a message
func (u *UI) StartProgress(message string) {
	if !u.Quiet {
		u.spinner = NewSpinner(u.out, message)
		u.spinner.Start()
	}
}

// StopProgress stops the spinner
func (u *UI) StopProgress(success bool, message string) {
	if u.spinner != nil {
		u.spinner.Stop(success, message)
		u.spinner = nil
	}
}

// Warning prints a warning message
func (u *UI) Warning(message string) {
	u.Printf("%s %s\n", ColorWarning("⚠"), message)
}

// Info prints an information message
func (u *UI) Info(message string) {
	u.Printf("%s %s\n", ColorInfo("INFO:"), message)
}

// Success prints a success message
func (u *UI) Success(message string) {
	u.Printf("%s %s\n", ColorSuccess("✓"), message)
}

// Section prints a section header
func (u *UI) Section(title string) {
	u.Printf("\n%s %s\n", ColorBold("▶"), ColorBold(title))
	u.Println(strings.Repeat("─", 50))
}

// KeyValue prints a key-value pair in a formatted way
func (u *UI) KeyValue(key, value string) {
	u.Printf("  %-20s %s\n", ColorDim(key+":"), value)
}

// Password displays a password input prompt
func Password(message, help string) (string, error) {
	var result string
	prompt := &survey.Password{
		Message: message,
		Help:    help,
	}

	err := survey.AskOne(prompt, &result)
	return result, err
}

// Confirm displays a yes/no prompt
func Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	err := survey.AskOne(&survey.Confirm{Message: message, Default: defaultValue}, &result)
	return result, err
}

// ShowLogo displays the application logo
func ShowLogo() {
	logo := `
       _             _                 _
   ___| |_ __ _ _ __| | ___   __ _  __| |
  / __| __/ _` + "`" + ` | '__| |/ _ \ / _` + "`" + ` |/ _` + "`" + ` |
  \__ \ || (_| | |  | | (_) | (_| | (_| |
  |___/\__\__,_|_|  |_|\___/ \__,_|\__,_|

      Raw event logs in, star schema out
`
	fmt.Println(ColorInfo(logo))
}
