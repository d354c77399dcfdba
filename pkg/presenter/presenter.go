// Package presenter provides consistent CLI output for user-facing messages
// with color support and a quiet mode. Log output goes through pkg/logger;
// this package is for the human-facing command results.
package presenter

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Presenter writes user-facing messages to a terminal.
type Presenter struct {
	out    io.Writer
	errOut io.Writer
	quiet  bool
}

// New creates a presenter writing to stdout/stderr.
func New() *Presenter {
	return NewWithWriters(os.Stdout, os.Stderr)
}

// NewWithWriters creates a presenter with custom writers, used by tests.
func NewWithWriters(out, errOut io.Writer) *Presenter {
	return &Presenter{out: out, errOut: errOut}
}

// SetQuiet suppresses non-error output.
func (p *Presenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// Error reports an error with optional context, bypassing quiet mode.
func (p *Presenter) Error(err error, context string) {
	if context != "" {
		fmt.Fprintf(p.errOut, "%s %s: %v\n", color.RedString("Error:"), context, err)
		return
	}
	fmt.Fprintf(p.errOut, "%s %v\n", color.RedString("Error:"), err)
}

// Success reports a successful operation.
func (p *Presenter) Success(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", color.GreenString("✓"), message)
}

// Warning reports a non-fatal condition.
func (p *Presenter) Warning(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", color.YellowString("Warning:"), message)
}

// Info prints an informational message.
func (p *Presenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, message)
}

// Section prints a section header.
func (p *Presenter) Section(title string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "\n%s\n", color.New(color.Bold).Sprint(title))
}

var defaultPresenter = New()

// Error reports an error via the default presenter.
func Error(err error, context string) { defaultPresenter.Error(err, context) }

// Success reports success via the default presenter.
func Success(message string) { defaultPresenter.Success(message) }

// Warning reports a warning via the default presenter.
func Warning(message string) { defaultPresenter.Warning(message) }

// Info prints a message via the default presenter.
func Info(message string) { defaultPresenter.Info(message) }

// Section prints a section header via the default presenter.
func Section(title string) { defaultPresenter.Section(title) }

// SetQuiet toggles quiet mode on the default presenter.
func SetQuiet(quiet bool) { defaultPresenter.SetQuiet(quiet) }
