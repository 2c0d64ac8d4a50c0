package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// LevelEnvVar overrides the default log level before flags are parsed.
const LevelEnvVar = "HEARTH_LOG_LEVEL"

const (
	boldStart = "\x1b[1m"
	boldEnd   = "\x1b[0m"
)

// SetupGlobalLogger parses level, applies it globally and rebinds the
// package-level zerolog logger. CLI entry points call it once.
func SetupGlobalLogger(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("unknown log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = NewLogger("global")
	return nil
}

// SetLogSeverityFromEnv applies LevelEnvVar, falling back to info when the
// variable is unset or unparsable.
func SetLogSeverityFromEnv() {
	lvl, err := zerolog.ParseLevel(os.Getenv(LevelEnvVar))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// NewLogger returns a console logger tagged with the component name. Colors
// are dropped when NO_COLOR is set or stdout is not a terminal.
func NewLogger(component string) zerolog.Logger {
	plain := os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stdout.Fd()))

	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		NoColor:    plain,
		TimeFormat: time.DateTime,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			FieldComponent,
			zerolog.CallerFieldName,
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{FieldComponent},
		FormatFieldValue: func(v any) string {
			tag := fmt.Sprintf("[%v]\t", v)
			if plain {
				return tag
			}
			return boldStart + tag + boldEnd
		},
	}

	return zerolog.New(writer).With().
		Str(FieldComponent, component).
		Caller().
		Timestamp().
		Logger()
}
