package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts Options
		want zapcore.Level
	}{
		{name: "development default", opts: Options{Development: true}, want: zapcore.DebugLevel},
		{name: "production default", opts: Options{}, want: zapcore.InfoLevel},
		{name: "override", opts: Options{Level: "warn", Service: "hadith-ingest"}, want: zapcore.WarnLevel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			logger, err := New(tc.opts)
			if err != nil {
				t.Fatalf("New(%+v) error = %v", tc.opts, err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush
			if got := logger.Level(); got != tc.want {
				t.Fatalf("level = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Level: "chatty"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}
