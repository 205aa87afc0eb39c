// Package ts provides timestamp-prefixed println logging measured from
// a caller-chosen start point, so log lines line up with a charge-mode
// session rather than wall-clock boot time.
package ts

import "time"

// Logger prefixes every line with "[duration-since-start]", or "[-]"
// before Start has been called.
type Logger struct {
	start time.Time
}

func New() *Logger { return &Logger{} }

// Start marks the reference point subsequent Printf/Println calls are
// measured against (a drop start, a boot, a tuning session start).
func (l *Logger) Start(now time.Time) { l.start = now }

func (l *Logger) prefix(now time.Time) string {
	if l.start.IsZero() {
		return "[-]"
	}
	return "[" + now.Sub(l.start).String() + "]"
}

// Println logs the prefix, then args, through bare println.
func (l *Logger) Println(now time.Time, args ...string) {
	line := l.prefix(now)
	for _, a := range args {
		line += " " + a
	}
	println(line)
}
