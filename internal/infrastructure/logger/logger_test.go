package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := SetLevel(in); got != want {
			t.Errorf("SetLevel(%q) = %v, want %v", in, got, want)
		}
		if zerolog.GlobalLevel() != want {
			t.Errorf("global level after %q = %v, want %v", in, zerolog.GlobalLevel(), want)
		}
	}
}
