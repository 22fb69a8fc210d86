package errorx

import (
	"log/slog"
	"runtime"
	"strconv"

	"github.com/pkg/errors"
)

// TraceAttr renders the innermost pkg/errors stack trace of err as a
// slog.Attr, so detached reset failures keep their origin when they are
// only ever logged.
//
// Example:
//
//	logger.Error(err.Error(), errorx.TraceAttr(err))
func TraceAttr(err error) slog.Attr {
	type tracer interface{ StackTrace() errors.StackTrace }

	var innermost tracer
	for e := err; e != nil; e = errors.Unwrap(e) {
		if t, ok := e.(tracer); ok {
			innermost = t
		}
	}

	var attrs []slog.Attr
	if innermost != nil {
		st := innermost.StackTrace()
		// drop the runtime frames below main
		if n := len(st); n > 2 {
			st = st[:n-2]
		}
		attrs = make([]slog.Attr, 0, len(st))
		for i, f := range st {
			attrs = append(attrs, slog.Attr{
				Key:   strconv.Itoa(i),
				Value: position(f),
			})
		}
	}
	return slog.Attr{Key: "trace", Value: slog.GroupValue(attrs...)}
}

func position(f errors.Frame) slog.Value {
	pc := uintptr(f) - 1
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return slog.StringValue("")
	}
	file, line := fn.FileLine(pc)
	return slog.StringValue(file + ":" + strconv.Itoa(line))
}
