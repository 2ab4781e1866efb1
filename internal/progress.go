package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// slowStep is the duration after which a finished step reports its time
const slowStep = time.Second

// ProgressStep represents a single step in a multi-step process
type ProgressStep struct {
	Message string
	Fn      func() error
}

// ShowProgress runs fn while a spinner with message is shown on stderr.
// Without a terminal the message is logged instead.
func ShowProgress(ctx context.Context, message string, fn func() error) error {
	if !IsTerminal(os.Stderr) {
		LogInfo("%s", message)
		return fn()
	}
	return spin(ctx, os.Stderr, message, fn)
}

// ShowProgressWithSteps runs steps in order and stops at the first failure
func ShowProgressWithSteps(ctx context.Context, steps []ProgressStep) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := fmt.Sprintf("[%d/%d] %s", i+1, len(steps), step.Message)
		if err := ShowProgress(ctx, msg, step.Fn); err != nil {
			return fmt.Errorf("%s: %w", step.Message, err)
		}
	}
	return nil
}

// spin animates a spinner on w until fn returns or ctx is done. The final
// line carries the outcome, and the elapsed time for slow steps.
func spin(ctx context.Context, w io.Writer, message string, fn func() error) error {
	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for frame := 0; ; frame++ {
		select {
		case err := <-done:
			icon := successStyle.Render("✓")
			if err != nil {
				icon = errorStyle.Render("✗")
			}
			suffix := ""
			if elapsed := time.Since(start); elapsed >= slowStep {
				suffix = fmt.Sprintf(" (%s)", elapsed.Round(100*time.Millisecond))
			}
			fmt.Fprintf(w, "\r%s %s%s\n", icon, message, suffix)
			return err
		case <-ctx.Done():
			fmt.Fprintln(w)
			return ctx.Err()
		case <-ticker.C:
			fmt.Fprintf(w, "\r%s %s", progressStyle.Render(spinnerFrames[frame%len(spinnerFrames)]), message)
		}
	}
}

// IsTerminal checks if the writer is a terminal
func IsTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// printStatus writes message to f, prefixed with a styled icon on a
// terminal and with plain otherwise
func printStatus(f *os.File, style lipgloss.Style, icon, plain, message string) {
	if IsTerminal(f) {
		fmt.Fprintf(f, "%s %s\n", style.Render(icon), message)
		return
	}
	fmt.Fprintf(f, "%s%s\n", plain, message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	printStatus(os.Stdout, successStyle, "✓", "", message)
}

// PrintError prints an error message
func PrintError(message string) {
	printStatus(os.Stderr, errorStyle, "✗", "", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	printStatus(os.Stdout, progressStyle, "ℹ", "", message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	printStatus(os.Stderr, warningStyle, "⚠", "WARNING: ", message)
}
