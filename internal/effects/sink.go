package effects

import (
	"github.com/rs/zerolog"

	"github.com/dialdesk/console/internal/types"
)

// LogSink renders effects as structured log lines. It is the default sink
// for the headless console binary.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink writing to logger
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "effects-sink").Logger()}
}

func (s *LogSink) StartRingtone(callID string) {
	s.logger.Info().Str("uniqueid", callID).Msg("ringtone start")
}

func (s *LogSink) StopRingtone(callID string) {
	s.logger.Info().Str("uniqueid", callID).Msg("ringtone stop")
}

func (s *LogSink) ShowIncomingPopup(call types.Call) {
	s.logger.Info().
		Str("uniqueid", call.UniqueID).
		Str("from", call.CallerID).
		Str("to", call.Destination).
		Msg("incoming call")
}

func (s *LogSink) DismissIncomingPopup(callID string) {
	s.logger.Info().Str("uniqueid", callID).Msg("incoming call dismissed")
}

func (s *LogSink) Notify(severity, message string) {
	switch severity {
	case "error", "critical":
		s.logger.Warn().Msg(message)
	default:
		s.logger.Info().Msg(message)
	}
}
