package logging

import (
	"context"
	"log/slog"
)

// AttrSource supplies attributes that change over the life of a process.
// *match.Context implements it.
type AttrSource interface {
	LogAttrs() []slog.Attr
}

// AttrFunc adapts a function to AttrSource.
type AttrFunc func() []slog.Attr

func (f AttrFunc) LogAttrs() []slog.Attr { return f() }

// ContextHandler stamps the current attributes of a source on every record.
type ContextHandler struct {
	inner  slog.Handler
	source AttrSource
}

// NewContextHandler wraps inner.
func NewContextHandler(inner slog.Handler, source AttrSource) *ContextHandler {
	return &ContextHandler{inner: inner, source: source}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.source != nil {
		r.AddAttrs(h.source.LogAttrs()...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), source: h.source}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), source: h.source}
}
