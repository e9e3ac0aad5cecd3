package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// EventsFileName is the JSONL file the EventLogger appends to.
const EventsFileName = "events.jsonl"

// EventKind names a record in the event log.
type EventKind string

const (
	KindCollapse   EventKind = "collapse"
	KindAdd        EventKind = "add"
	KindRemove     EventKind = "remove"
	KindReconnect  EventKind = "reconnect"
	KindPopulation EventKind = "population"
	KindParams     EventKind = "params"
	KindLoad       EventKind = "load"
	// KindTick summarizes one Tick call. Written only at trace level.
	KindTick EventKind = "tick"
)

// Record is one engine event. Node and Value are omitted when unset.
type Record struct {
	Kind   EventKind
	Tick   uint64
	Node   string
	Value  *int
	Fields map[string]any
}

// fileSink serializes writes to the events file and drops them once closed.
type fileSink struct {
	mu sync.Mutex
	f  *os.File
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return len(p), nil
	}
	return s.f.Write(p)
}

func (s *fileSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// EventLogger writes engine events to <dir>/events.jsonl through a slog
// JSON handler. Each line carries "kind" in place of slog's "msg" key.
// Structural events and collapses are written at debug; tick summaries only
// at trace. A nil EventLogger is safe to use; all methods are no-ops.
type EventLogger struct {
	sink   *fileSink
	logger *slog.Logger
	path   string
}

// NewEventLogger opens dir/events.jsonl for append. At "info" level (the
// default) it returns nil and creates no file. It also returns nil when the
// file cannot be opened.
func NewEventLogger(dir string, level string) *EventLogger {
	lvl := ParseLevel(level)
	if lvl >= slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	path := filepath.Join(dir, EventsFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	sink := &fileSink{f: f}
	handler := slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.MessageKey {
				a.Key = "kind"
				return a
			}
			return labelTrace(groups, a)
		},
	})
	return &EventLogger{sink: sink, logger: slog.New(handler), path: path}
}

// Path returns the events file, or "" on a nil logger.
func (el *EventLogger) Path() string {
	if el == nil {
		return ""
	}
	return el.path
}

// Log writes r as one line. Fields are emitted in key order after the
// fixed attributes.
func (el *EventLogger) Log(r Record) {
	if el == nil {
		return
	}

	level := slog.LevelDebug
	if r.Kind == KindTick {
		level = LevelTrace
	}

	attrs := make([]slog.Attr, 0, 3+len(r.Fields))
	attrs = append(attrs, slog.Uint64("tick", r.Tick))
	if r.Node != "" {
		attrs = append(attrs, slog.String("node", r.Node))
	}
	if r.Value != nil {
		attrs = append(attrs, slog.Int("value", *r.Value))
	}
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, r.Fields[k]))
	}

	el.logger.LogAttrs(context.Background(), level, string(r.Kind), attrs...)
}

// Close closes the events file. Later Log calls are dropped.
func (el *EventLogger) Close() error {
	if el == nil {
		return nil
	}
	return el.sink.close()
}
