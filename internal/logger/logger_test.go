package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitOnlyOnce(t *testing.T) {
	Init("error")
	first := zerolog.GlobalLevel()
	Init("debug")
	if got := zerolog.GlobalLevel(); got != first {
		t.Errorf("second Init changed level to %v, want %v", got, first)
	}
}

func TestHelpersEmit(t *testing.T) {
	// The package helpers chain level events off the singleton; they must
	// be callable without a prior Init.
	Info("info message")
	Warn("warn message")
	Error("error message", nil)
	Debug("debug message")

	log := With("test")
	log.Info().Str("k", "v").Msg("component message")
}
