package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent is one log record as served by the /api/logs endpoint.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	EventType     string            `json:"event_type,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// StreamHub keeps the most recent log events in a fixed ring. Sequence
// numbers start at 1 and are contiguous, so a reader resumes with the last
// sequence it saw.
type StreamHub struct {
	mu      sync.Mutex
	ring    []LogEvent
	head    int // index of the oldest event
	count   int
	last    uint64
	changed chan struct{}
}

// NewStreamHub returns a hub retaining capacity events (512 when <= 0).
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{ring: make([]LogEvent, capacity), changed: make(chan struct{})}
}

// Publish stores evt, evicting the oldest event when the ring is full, and
// wakes every waiting Fetch.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last++
	evt.Sequence = h.last
	if h.count < len(h.ring) {
		h.ring[(h.head+h.count)%len(h.ring)] = evt
		h.count++
	} else {
		h.ring[h.head] = evt
		h.head = (h.head + 1) % len(h.ring)
	}
	close(h.changed)
	h.changed = make(chan struct{})
}

// Fetch returns up to limit events newer than since together with the latest
// sequence. With wait set it blocks until such an event exists or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		h.mu.Lock()
		events := h.afterLocked(since, limit)
		last, changed := h.last, h.changed
		h.mu.Unlock()
		if len(events) > 0 || !wait {
			return events, last, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, last, ctx.Err()
		}
	}
}

// Tail returns the newest limit events and the latest sequence.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.clampLimit(limit)
	if n > h.count {
		n = h.count
	}
	return h.copyLocked(h.count-n, n), h.last
}

func (h *StreamHub) afterLocked(since uint64, limit int) []LogEvent {
	if h.count == 0 || since >= h.last {
		return nil
	}
	oldest := h.last - uint64(h.count) + 1
	skip := 0
	if since >= oldest {
		skip = int(since - oldest + 1)
	}
	return h.copyLocked(skip, min(h.count-skip, h.clampLimit(limit)))
}

func (h *StreamHub) copyLocked(offset, n int) []LogEvent {
	if n <= 0 {
		return nil
	}
	out := make([]LogEvent, n)
	for i := range out {
		out[i] = h.ring[(h.head+offset+i)%len(h.ring)]
	}
	return out
}

func (h *StreamHub) clampLimit(limit int) int {
	if limit <= 0 || limit > len(h.ring) {
		return len(h.ring)
	}
	return limit
}

// streamHandler publishes every record it forwards to next.
type streamHandler struct {
	next   slog.Handler
	hub    *StreamHub
	preset []slog.Attr
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, r slog.Record) error {
	h.hub.Publish(h.event(r))
	return h.next.Handle(ctx, r)
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &streamHandler{
		next:   h.next.WithAttrs(attrs),
		hub:    h.hub,
		preset: append(h.preset[:len(h.preset):len(h.preset)], attrs...),
	}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{next: h.next.WithGroup(name), hub: h.hub, preset: h.preset}
}

// event converts r into a LogEvent. Well-known keys get their own fields;
// record attributes override handler presets with the same key.
func (h *streamHandler) event(r slog.Record) LogEvent {
	evt := LogEvent{
		Timestamp: r.Time,
		Level:     strings.ToUpper(r.Level.String()),
		Message:   strings.TrimSpace(r.Message),
	}
	set := func(a slog.Attr) bool {
		key := strings.TrimSpace(a.Key)
		value := attrString(a.Value)
		switch key {
		case "":
		case FieldComponent:
			evt.Component = value
		case FieldSessionID:
			evt.SessionID = value
		case FieldEventType:
			evt.EventType = value
		case FieldCorrelationID:
			evt.CorrelationID = value
		default:
			if evt.Fields == nil {
				evt.Fields = make(map[string]string)
			}
			evt.Fields[key] = value
		}
		return true
	}
	for _, a := range h.preset {
		set(a)
	}
	r.Attrs(set)
	return evt
}
