package log

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// MultiHandler sends each record to every child that accepts its level. The
// CLI uses it to write to stderr and a rotated log file at once.
type MultiHandler struct {
	children []slog.Handler
}

// NewMultiHandler ignores nil handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	children := slices.DeleteFunc(slices.Clone(handlers), func(h slog.Handler) bool { return h == nil })
	return &MultiHandler{children: children}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(h.children, func(child slog.Handler) bool {
		return child.Enabled(ctx, level)
	})
}

// Handle gives every child a clone of the record and joins their errors.
func (h *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, child := range h.children {
		if child.Enabled(ctx, record.Level) {
			errs = append(errs, child.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(child slog.Handler) slog.Handler { return child.WithAttrs(attrs) })
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	return h.each(func(child slog.Handler) slog.Handler { return child.WithGroup(name) })
}

func (h *MultiHandler) each(fn func(slog.Handler) slog.Handler) *MultiHandler {
	children := make([]slog.Handler, len(h.children))
	for i, child := range h.children {
		children[i] = fn(child)
	}
	return &MultiHandler{children: children}
}
