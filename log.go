package h2engine

import (
	"log"
	"os"

	"github.com/valyala/fasthttp"
)

// Logger is the logging capability threaded through session and flusher
// the same way the teacher threads fasthttp.Logger through
// serverConn, so a caller embedding this engine in a fasthttp-based
// server can reuse its existing logger.
type Logger = fasthttp.Logger

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// NopLogger discards everything. It is the zero-value default so a
// Session/Flusher built without an explicit logger never panics on a
// nil Logger.
var NopLogger Logger = nopLogger{}

// StdLogger adapts the standard library's *log.Logger to the Logger
// capability.
func StdLogger(l *log.Logger) Logger {
	if l == nil {
		l = log.New(os.Stderr, "", log.LstdFlags)
	}
	return stdLoggerAdapter{l}
}

type stdLoggerAdapter struct{ l *log.Logger }

func (a stdLoggerAdapter) Printf(format string, args ...interface{}) {
	a.l.Printf(format, args...)
}
