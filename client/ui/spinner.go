package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// Spinner reports progress of a long request on stderr.
// A nil *Spinner is valid and prints nothing but its final message.
type Spinner struct {
	*spinner.Spinner
	msg string
}

// NewSpinner starts a spinner with the given message. It returns nil when
// stderr is not a terminal, so piped output stays free of escape codes.
func NewSpinner(msg string) *Spinner {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}

	s := &Spinner{
		spinner.New(
			spinner.CharSets[11],
			150*time.Millisecond,
			spinner.WithHiddenCursor(true),
			spinner.WithWriter(os.Stderr),
			spinner.WithSuffix(" "+msg),
		),
		msg,
	}
	s.Start()
	return s
}

// UpdateMessage updates the spinner message.
func (s *Spinner) UpdateMessage(msg string) {
	if s == nil {
		return
	}
	s.Spinner.Suffix = " " + msg
	s.msg = msg
}

// Success stops the spinner with a green check mark.
func (s *Spinner) Success(msg ...string) {
	s.finish(color.HiGreenString("✓"), msg)
}

// Warn stops the spinner with a yellow mark.
func (s *Spinner) Warn(msg ...string) {
	s.finish(color.HiYellowString("!"), msg)
}

// Fail stops the spinner with a red cross.
func (s *Spinner) Fail(msg ...string) {
	s.finish(color.HiRedString("✗"), msg)
}

func (s *Spinner) finish(mark string, msg []string) {
	if len(msg) == 0 {
		if s == nil {
			return
		}
		msg = []string{s.msg}
	}

	if s == nil {
		writeFinal(os.Stderr, mark, msg[0])
		return
	}
	s.Spinner.FinalMSG = fmt.Sprintf("%s %s\n", mark, msg[0])
	s.Stop()
}

func writeFinal(w io.Writer, mark, msg string) {
	fmt.Fprintf(w, "%s %s\n", mark, msg)
}
