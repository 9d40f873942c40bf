package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultEventLogSize is how many records an EventLog keeps.
const DefaultEventLogSize = 100

// Entry is one captured log record.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   string // key=value pairs, space separated
}

// String renders the entry as a single dashboard line.
func (e Entry) String() string {
	ts := e.Time.Format("15:04:05")
	if e.Attrs == "" {
		return fmt.Sprintf("%s %-5s %s", ts, e.Level, e.Message)
	}
	return fmt.Sprintf("%s %-5s %s %s", ts, e.Level, e.Message, e.Attrs)
}

// ring is the storage shared by an EventLog and its WithAttrs/WithGroup
// derivatives.
type ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	count   int
	levels  map[slog.Level]int
}

// EventLog is a slog.Handler that keeps the most recent records in memory
// and optionally forwards every record to another handler. The dashboard
// reads it while stderr output is suppressed.
type EventLog struct {
	ring    *ring
	level   slog.Leveler
	forward slog.Handler
	attrs   string // rendered WithAttrs pairs
	group   string
}

// NewEventLog creates an event log holding size records at or above level.
// forward may be nil.
func NewEventLog(size int, level slog.Leveler, forward slog.Handler) *EventLog {
	if size <= 0 {
		size = DefaultEventLogSize
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &EventLog{
		ring: &ring{
			entries: make([]Entry, size),
			levels:  make(map[slog.Level]int),
		},
		level:   level,
		forward: forward,
	}
}

// Enabled reports whether either the ring or the forward handler wants level.
func (l *EventLog) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= l.level.Level() {
		return true
	}
	return l.forward != nil && l.forward.Enabled(ctx, level)
}

// Handle records r and passes it on.
func (l *EventLog) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= l.level.Level() {
		l.record(r)
	}
	if l.forward != nil && l.forward.Enabled(ctx, r.Level) {
		return l.forward.Handle(ctx, r)
	}
	return nil
}

func (l *EventLog) record(r slog.Record) {
	var b strings.Builder
	b.WriteString(l.attrs)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, l.group, a)
		return true
	})

	e := Entry{Time: r.Time, Level: r.Level, Message: r.Message, Attrs: b.String()}

	rg := l.ring
	rg.mu.Lock()
	rg.entries[rg.next] = e
	rg.next = (rg.next + 1) % len(rg.entries)
	rg.count = min(rg.count+1, len(rg.entries))
	rg.levels[r.Level]++
	rg.mu.Unlock()
}

func appendAttr(b *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	if group != "" {
		b.WriteString(group)
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}

// WithAttrs returns a handler sharing this log's storage.
func (l *EventLog) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *l
	var b strings.Builder
	b.WriteString(l.attrs)
	for _, a := range attrs {
		appendAttr(&b, l.group, a)
	}
	out.attrs = b.String()
	if l.forward != nil {
		out.forward = l.forward.WithAttrs(attrs)
	}
	return &out
}

// WithGroup returns a handler sharing this log's storage.
func (l *EventLog) WithGroup(name string) slog.Handler {
	if name == "" {
		return l
	}
	out := *l
	out.group = name
	if l.group != "" {
		out.group = l.group + "." + name
	}
	if l.forward != nil {
		out.forward = l.forward.WithGroup(name)
	}
	return &out
}

// Recent returns up to n of the newest entries, oldest first.
func (l *EventLog) Recent(n int) []Entry {
	rg := l.ring
	rg.mu.Lock()
	defer rg.mu.Unlock()

	n = min(n, rg.count)
	out := make([]Entry, 0, n)
	size := len(rg.entries)
	for i := range n {
		out = append(out, rg.entries[(rg.next-n+i+size)%size])
	}
	return out
}

// CountByLevel returns how many records of each level were seen, including
// ones that have since rotated out.
func (l *EventLog) CountByLevel() map[slog.Level]int {
	rg := l.ring
	rg.mu.Lock()
	defer rg.mu.Unlock()

	out := make(map[slog.Level]int, len(rg.levels))
	for k, v := range rg.levels {
		out[k] = v
	}
	return out
}
