package emit

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogEmitter writes events through a zerolog logger.
//
// In JSON mode each event is one JSON object per line. Otherwise a
// zerolog ConsoleWriter renders human-readable lines.
//
// Example:
//
//	emitter := emit.NewLogEmitter(os.Stderr, true)
type LogEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter creates a LogEmitter writing to writer (os.Stdout if nil).
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	if !jsonMode {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339, NoColor: true}
	}
	return NewLogEmitterFromLogger(zerolog.New(writer).With().Timestamp().Logger())
}

// NewLogEmitterFromLogger creates a LogEmitter on an existing logger.
func NewLogEmitterFromLogger(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Emit logs the event. Failures are logged at error level, everything
// else at info.
func (l *LogEmitter) Emit(event Event) {
	var ev *zerolog.Event
	if _, failed := event.Meta["error"]; failed {
		ev = l.logger.Error()
	} else {
		ev = l.logger.Info()
	}

	ev = ev.Str("run_id", event.RunID).Int("step", event.Step)
	if event.HasNode() {
		ev = ev.Int("node_id", event.NodeID)
	}
	if len(event.Meta) > 0 {
		ev = ev.Fields(event.Meta)
	}
	ev.Msg(event.Msg)
}
