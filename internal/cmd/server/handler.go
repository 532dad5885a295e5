package serverrun

import (
	"context"

	"github.com/leviramsey/sliceoffset/internal/projection"
	"github.com/leviramsey/sliceoffset/internal/validation"
	"github.com/leviramsey/sliceoffset/pkg/log"
)

// loggingHandler is the reference Handler used by `projector server start`:
// it has no business logic of its own, so it logs each accepted envelope at
// debug level. Embedding applications supply their own projection.Handler;
// this one exists so the CLI has something to run.
func loggingHandler(logger log.Logger, projectionName string) projection.Handler {
	return func(ctx context.Context, envelopes []validation.Envelope) (projection.HandlerResult, error) {
		for _, e := range envelopes {
			logger.Debug("envelope",
				log.Str("projection", projectionName),
				log.Str("pid", e.Pid),
				log.Uint64("seqNr", e.SeqNr),
				log.Str("origin", e.Origin.String()),
			)
		}
		return projection.HandlerResult{}, nil
	}
}

// loggingObserver logs restarts at warn level, pauses, resumes and replay
// triggers at info level, handler errors at error level, and every other
// event at debug level.
func loggingObserver(logger log.Logger) projection.StatusObserver {
	return func(ev projection.StatusEvent) {
		fields := []log.Field{log.Str("pid", ev.Pid), log.Uint64("seqNr", ev.SeqNr), log.Int("slice", ev.Slice)}
		switch ev.Kind {
		case projection.EventRestarting:
			logger.Warn("projection restarting", log.Err(ev.Err), log.Int("restarts", ev.Restarts))
		case projection.EventPaused:
			logger.Info("projection paused")
		case projection.EventResumed:
			logger.Info("projection resumed")
		case projection.EventReplayTriggered:
			logger.Info("replay triggered", fields...)
		case projection.EventHandlerError:
			logger.Error("handler error", append(fields, log.Err(ev.Err))...)
		default:
			logger.Debug(ev.Kind.String(), fields...)
		}
	}
}
