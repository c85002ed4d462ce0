package logging

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Entry is a log line as shown in the debug console.
type Entry struct {
	Time      time.Time
	Level     log.Level
	Component string
	Message   string
}

// Hook copies log entries onto a channel. Entries are dropped when nobody
// is reading fast enough.
type Hook struct {
	levels  []log.Level
	entries chan Entry
}

func NewHook(buffer int, minLevel log.Level) *Hook {
	var levels []log.Level
	for _, l := range log.AllLevels {
		if l <= minLevel {
			levels = append(levels, l)
		}
	}
	return &Hook{
		levels:  levels,
		entries: make(chan Entry, buffer),
	}
}

func (h *Hook) Levels() []log.Level {
	return h.levels
}

func (h *Hook) Fire(e *log.Entry) error {
	component, _ := e.Data["component"].(string)
	msg := e.Message
	if err, ok := e.Data[log.ErrorKey].(error); ok {
		msg += ": " + err.Error()
	}
	select {
	case h.entries <- Entry{Time: e.Time, Level: e.Level, Component: component, Message: msg}:
	default:
	}
	return nil
}

// Entries is the stream read by the debug console.
func (h *Hook) Entries() <-chan Entry {
	return h.entries
}
