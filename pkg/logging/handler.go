package logging

import (
	"context"
	"log/slog"

	"github.com/sirupsen/logrus"
)

// Handler is a slog.Handler that emits each record as a logrus entry.
// Groups become dotted field prefixes.
type Handler struct {
	logger *logrus.Logger
	fields logrus.Fields
	group  string
}

// NewHandler wraps a logrus logger
func NewHandler(logger *logrus.Logger) *Handler {
	return &Handler{logger: logger, fields: logrus.Fields{}}
}

// Enabled defers to the logrus level
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.IsLevelEnabled(toLogrus(level))
}

// Handle writes the record with the handler's fields and the record's attrs
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	fields := make(logrus.Fields, len(h.fields)+r.NumAttrs())
	for k, v := range h.fields {
		fields[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(fields, h.group, a)
		return true
	})

	entry := h.logger.WithFields(fields)
	if !r.Time.IsZero() {
		entry = entry.WithTime(r.Time)
	}
	entry.Log(toLogrus(r.Level), r.Message)
	return nil
}

// WithAttrs returns a handler that adds attrs to every record
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, a := range attrs {
		addAttr(next.fields, next.group, a)
	}
	return next
}

// WithGroup returns a handler that nests later attrs under name
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.group = prefixed(h.group, name)
	return next
}

func (h *Handler) clone() *Handler {
	fields := make(logrus.Fields, len(h.fields))
	for k, v := range h.fields {
		fields[k] = v
	}
	return &Handler{logger: h.logger, fields: fields, group: h.group}
}

func addAttr(fields logrus.Fields, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := group
		if a.Key != "" {
			inner = prefixed(group, a.Key)
		}
		for _, ga := range a.Value.Group() {
			addAttr(fields, inner, ga)
		}
		return
	}
	fields[prefixed(group, a.Key)] = a.Value.Any()
}

func prefixed(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

var _ slog.Handler = (*Handler)(nil)
