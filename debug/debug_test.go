package debug

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw   string
		want  zerolog.Level
		known bool
	}{
		{"", zerolog.InfoLevel, false},
		{"trace", zerolog.TraceLevel, true},
		{" DEBUG ", zerolog.DebugLevel, true},
		{"info", zerolog.InfoLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"off", zerolog.Disabled, true},
		{"verbose", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseLevel(tt.raw)
			if got != tt.want || ok != tt.known {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.raw, got, ok, tt.want, tt.known)
			}
		})
	}
}

func TestPrintfGatedByDebug(t *testing.T) {
	prevEnabled := Enabled()
	prevLevel := Logger().GetLevel()
	defer func() {
		enabled.Store(prevEnabled)
		SetOutput(os.Stderr)
		SetLevel(prevLevel)
	}()

	var buf bytes.Buffer
	SetOutput(&buf)

	Disable()
	Printf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output while disabled, got %q", buf.String())
	}

	Enable()
	Printf("visible %d", 2)
	if !strings.Contains(buf.String(), "visible 2") {
		t.Errorf("expected debug line in output, got %q", buf.String())
	}
}

func TestEnableConcurrentWithPrintf(t *testing.T) {
	prevEnabled := Enabled()
	prevLevel := Logger().GetLevel()
	defer func() {
		enabled.Store(prevEnabled)
		SetOutput(os.Stderr)
		SetLevel(prevLevel)
	}()

	SetOutput(io.Discard)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Enable()
				Disable()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Printf("tick %d", j)
			}
		}()
	}
	wg.Wait()

	Enable()
	if !Enabled() {
		t.Error("expected tracing enabled")
	}
}
