package internal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestShowProgress(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		message string
		fn      func() error
		wantErr bool
	}{
		{
			name:    "successful function",
			message: "Testing",
			fn:      func() error { return nil },
		},
		{
			name:    "function with error",
			message: "Testing error",
			fn:      func() error { return errors.New("test error") },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ShowProgress(ctx, tt.message, tt.fn)
			if (err != nil) != tt.wantErr {
				t.Errorf("ShowProgress() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestShowProgressLogsMessageVerbatim(t *testing.T) {
	if IsTerminal(os.Stderr) {
		t.Skip("stderr is a terminal")
	}
	originalLevel := logLevel
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer func() {
		SetLogOutput(os.Stderr)
		SetLogLevel(originalLevel)
	}()
	SetLogLevel(LogLevelInfo)

	if err := ShowProgress(context.Background(), "Uploading 100%s done", func() error { return nil }); err != nil {
		t.Fatalf("ShowProgress() error = %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "Uploading 100%s done") {
		t.Errorf("progress message not logged verbatim: %q", out)
	}
}

func TestShowProgressSimple(t *testing.T) {
	var buf bytes.Buffer
	err := spin(context.Background(), &buf, "Loading messages", func() error {
		time.Sleep(150 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("spin() error = %v", err)
	}
	if !strings.Contains(buf.String(), "✓") || !strings.Contains(buf.String(), "Loading messages") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	err = spin(context.Background(), &buf, "Sending", func() error { return errors.New("boom") })
	if err == nil || !strings.Contains(buf.String(), "✗") {
		t.Errorf("spin() error = %v, output = %q", err, buf.String())
	}
}

func TestShowProgressSimple_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	release := make(chan struct{})
	defer close(release)
	err := spin(ctx, &buf, "Waiting", func() error {
		<-release
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("spin() error = %v, want deadline exceeded", err)
	}
}

func TestSpinReportsSlowSteps(t *testing.T) {
	var buf bytes.Buffer
	err := spin(context.Background(), &buf, "Uploading", func() error {
		time.Sleep(slowStep + 200*time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("spin() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Uploading (1.") {
		t.Errorf("slow step should report its duration: %q", buf.String())
	}
}

func TestShowProgressWithStepsStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := 0
	steps := []ProgressStep{
		{Message: "first", Fn: func() error { ran++; cancel(); return nil }},
		{Message: "second", Fn: func() error { ran++; return nil }},
	}
	if err := ShowProgressWithSteps(ctx, steps); !errors.Is(err, context.Canceled) {
		t.Errorf("ShowProgressWithSteps() error = %v, want context.Canceled", err)
	}
	if ran != 1 {
		t.Errorf("ran %d step(s), want 1", ran)
	}
}

func TestShowProgressWithSteps(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		steps   []ProgressStep
		wantErr bool
	}{
		{
			name: "successful steps",
			steps: []ProgressStep{
				{Message: "Step 1", Fn: func() error { return nil }},
				{Message: "Step 2", Fn: func() error { return nil }},
			},
		},
		{
			name: "step with error",
			steps: []ProgressStep{
				{Message: "Step 1", Fn: func() error { return nil }},
				{Message: "Step 2", Fn: func() error { return errors.New("step error") }},
			},
			wantErr: true,
		},
		{
			name:  "empty steps",
			steps: []ProgressStep{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ShowProgressWithSteps(ctx, tt.steps)
			if (err != nil) != tt.wantErr {
				t.Errorf("ShowProgressWithSteps() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}
