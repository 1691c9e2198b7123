package busloop

import (
	"log"

	"github.com/joeycumines/logiface"
)

// logCritical reports a condition that is about to terminate Run. It must
// never panic and must never be lost: with no configured logger, a disabled
// builder, or a panicking writer, it falls back to the standard library
// logger.
func (l *Loop) logCritical(msg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("CRITICAL: busloop(%d): %s: %v (logger panicked: %v)", l.id, msg, err, r)
		}
	}()
	if b := l.logger.Crit(); b.Enabled() {
		b.Uint64("loop", l.id).Err(err).Log(msg)
		return
	}
	log.Printf("CRITICAL: busloop(%d): %s: %v", l.id, msg, err)
}

// logWarning starts a warning event for recoverable conditions: registry
// capacity, removes of unknown sources, completions dropped at termination.
// Nil-safe; with no logger configured the chain no-ops.
func (l *Loop) logWarning() *logiface.Builder[logiface.Event] {
	return l.logger.Warning().Uint64("loop", l.id)
}

// logDebug starts a debug event for iteration tracing.
func (l *Loop) logDebug() *logiface.Builder[logiface.Event] {
	return l.logger.Debug().Uint64("loop", l.id)
}
