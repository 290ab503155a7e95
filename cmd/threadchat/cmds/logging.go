package cmds

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// initLogger configures the global zerolog logger. format is "text", "json"
// or "auto" (text on a terminal, json otherwise).
func initLogger(level, format string, w io.Writer) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	useConsole := false
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "auto":
		if f, ok := w.(*os.File); ok {
			useConsole = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	case "text":
		useConsole = true
	case "json":
	default:
		return errors.Errorf("invalid log format %q", format)
	}

	if useConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}
