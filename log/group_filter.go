package log

import (
	"context"
	"log/slog"
	"strings"
)

// GroupFilterHandler drops records by the component group they were logged
// under, which is the first group opened on the logger (connector, patches,
// fixture, ...). A rule "name" allows a component, "-name" denies it. With at
// least one allow rule, components not allowed are dropped; records logged
// before any group is opened always pass.
type GroupFilterHandler struct {
	next      slog.Handler
	allowed   map[string]struct{}
	denied    map[string]struct{}
	component string
}

// NewGroupFilterHandler wraps next. Without usable rules next is returned
// unchanged.
func NewGroupFilterHandler(next slog.Handler, rules []string) slog.Handler {
	if next == nil {
		return nil
	}
	allowed := make(map[string]struct{})
	denied := make(map[string]struct{})
	for _, rule := range rules {
		rule = strings.ToLower(strings.TrimSpace(rule))
		if name, ok := strings.CutPrefix(rule, "-"); ok {
			if name != "" {
				denied[name] = struct{}{}
			}
			continue
		}
		if rule != "" {
			allowed[rule] = struct{}{}
		}
	}
	if len(allowed) == 0 && len(denied) == 0 {
		return next
	}
	return &GroupFilterHandler{next: next, allowed: allowed, denied: denied}
}

func (h *GroupFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.emits() && h.next.Enabled(ctx, level)
}

func (h *GroupFilterHandler) Handle(ctx context.Context, record slog.Record) error {
	if !h.emits() {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *GroupFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	return &clone
}

func (h *GroupFilterHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	if clone.component == "" {
		clone.component = strings.ToLower(name)
	}
	return &clone
}

func (h *GroupFilterHandler) emits() bool {
	if h.component == "" {
		return true
	}
	if _, ok := h.denied[h.component]; ok {
		return false
	}
	if len(h.allowed) == 0 {
		return true
	}
	_, ok := h.allowed[h.component]
	return ok
}
