// Package auditlog keeps a durable record of patch activations.
//
// Handler is a slog.Handler that accepts only records carrying a "patch"
// attribute, which the registry attaches to everything it logs while an
// activation runs. The "session" and "patch" attributes become columns of
// the Entry; the remaining attributes travel as a map. Entries are queued
// and written to a Sink from a single background goroutine, so a slow sink
// never blocks the test that is activating patches.
package auditlog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultQueueSize = 256

const (
	sessionKey = "session"
	patchKey   = "patch"
)

var (
	ErrQueueFull = errors.New("auditlog: queue full")
	ErrClosed    = errors.New("auditlog: handler closed")
)

// Entry is one recorded activation event.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Session string         `json:"session"`
	Patch   string         `json:"patch"`
	Scope   string         `json:"scope,omitempty"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

type Sink interface {
	Insert(ctx context.Context, entry Entry) error
}

type SinkFunc func(ctx context.Context, entry Entry) error

func (f SinkFunc) Insert(ctx context.Context, entry Entry) error { return f(ctx, entry) }

type Option func(*options)

type options struct {
	level     slog.Leveler
	queueSize int
	onError   func(Entry, error)
}

// WithLevel sets the minimum level recorded. The default is debug, since
// successful activations are logged at that level.
func WithLevel(level slog.Leveler) Option {
	return func(o *options) {
		if level != nil {
			o.level = level
		}
	}
}

func WithQueueSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.queueSize = size
		}
	}
}

// WithErrorHandler is called from the writer goroutine when the sink
// rejects an entry.
func WithErrorHandler(fn func(Entry, error)) Option {
	return func(o *options) { o.onError = fn }
}

type Handler struct {
	core   *core
	attrs  []slog.Attr
	groups []string
}

type core struct {
	sink    Sink
	level   slog.Leveler
	onError func(Entry, error)

	queue chan Entry
	stop  chan struct{}

	writer sync.WaitGroup

	// mu is held for reading while a record is queued and for writing while
	// the handler is marked closed, so no record is queued after stop.
	mu     sync.RWMutex
	closed atomic.Bool
}

// NewHandler starts the writer goroutine. Close stops it.
func NewHandler(sink Sink, opts ...Option) (*Handler, error) {
	if sink == nil {
		return nil, errors.New("auditlog: sink is required")
	}
	o := options{level: slog.LevelDebug, queueSize: defaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}

	c := &core{
		sink:    sink,
		level:   o.level,
		onError: o.onError,
		queue:   make(chan Entry, o.queueSize),
		stop:    make(chan struct{}),
	}
	c.writer.Add(1)
	go c.run()

	return &Handler{core: c}, nil
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return !h.core.closed.Load() && level >= h.core.level.Level()
}

// Handle queues the record when it belongs to an activation. A full queue
// drops the entry and reports ErrQueueFull.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.core.level.Level() {
		return nil
	}
	entry, ok := h.entry(record)
	if !ok {
		return nil
	}

	c := h.core
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed.Load() {
		return ErrClosed
	}

	select {
	case c.queue <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *Handler) clone() *Handler {
	return &Handler{
		core:   h.core,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

// Close refuses new records, waits for in-flight Handle calls, then for the
// writer to drain the queue or for ctx to end. Closing twice is a no-op.
func (h *Handler) Close(ctx context.Context) error {
	c := h.core
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return nil
	}
	c.closed.Store(true)
	c.mu.Unlock()
	close(c.stop)

	done := make(chan struct{})
	go func() {
		c.writer.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *core) run() {
	defer c.writer.Done()
	for {
		select {
		case entry := <-c.queue:
			c.insert(entry)
		case <-c.stop:
			for {
				select {
				case entry := <-c.queue:
					c.insert(entry)
				default:
					return
				}
			}
		}
	}
}

func (c *core) insert(entry Entry) {
	if err := c.sink.Insert(context.Background(), entry); err != nil && c.onError != nil {
		c.onError(entry, err)
	}
}

func (h *Handler) entry(record slog.Record) (Entry, bool) {
	e := Entry{
		Time:    record.Time.UTC(),
		Level:   record.Level.String(),
		Scope:   strings.Join(h.groups, "."),
		Message: record.Message,
	}
	if record.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	attrs := make(map[string]any)
	var visit func(a slog.Attr)
	visit = func(a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Value.Kind() == slog.KindString {
			switch a.Key {
			case sessionKey:
				e.Session = a.Value.String()
				return
			case patchKey:
				e.Patch = a.Value.String()
				return
			}
		}
		if a.Key == "" {
			if a.Value.Kind() == slog.KindGroup {
				for _, child := range a.Value.Group() {
					visit(child)
				}
			}
			return
		}
		attrs[a.Key] = attrValue(a.Value)
	}

	for _, a := range h.attrs {
		visit(a)
	}
	record.Attrs(func(a slog.Attr) bool {
		visit(a)
		return true
	})

	if e.Patch == "" {
		return Entry{}, false
	}
	if len(attrs) > 0 {
		e.Attrs = attrs
	}
	return e, true
}

// attrValue converts a resolved value into something encoding/json keeps
// readable.
func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := make(map[string]any)
		for _, child := range v.Group() {
			child.Value = child.Value.Resolve()
			if child.Key != "" {
				group[child.Key] = attrValue(child.Value)
			}
		}
		return group
	}
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return v.Any()
}
