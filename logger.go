package planar

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler drops every record. Enabled reports false so the attribute
// arguments at planar's log sites are never formatted.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr is swapped by SetLogger while guards on other goroutines log.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger routes planar's diagnostics to l. Passing nil silences them
// again, which is also the initial state. It may be called at any time,
// including while channels are in use.
//
// planar logs only around storage and lock lifecycle, never per cell.
// Allocation happens in NewChannel, reallocation when CopyFromSlice changes
// the size, partitioning in WriteGuard.Chunks and freeing in Close:
//
//	level  message                                                  attributes
//	Debug  planar: channel allocated                                width, height, cells
//	Debug  planar: channel reallocated                              from, to
//	Debug  planar: chunk partition                                  width, height, edge, chunks
//	Debug  planar: channel freed                                    cells
//	Error  planar: channel closed with outstanding guards           channel, lock
//	Error  planar: channel closed while an acquisition was waiting
//
// Each Error record is written just before the matching panic, so the
// lock word that made Close fail survives in the log.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the logger planar currently writes to.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
