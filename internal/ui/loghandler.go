package ui

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bamsammich/arcmgr/internal/event"
)

// MultiHandler fans each record out to every handler that accepts its level.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler combines handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}

// teePresenter logs every non-tick message before handing it on.
type teePresenter struct {
	next   Presenter
	logger *slog.Logger
}

// Tee wraps p so that worker messages are also written to logger as
// "arcmgr.event" records.
//
//nolint:ireturn // wraps any presenter
func Tee(p Presenter, logger *slog.Logger) Presenter {
	return &teePresenter{next: p, logger: logger}
}

// Run logs every message and forwards it to the wrapped presenter. It returns
// as soon as the wrapped presenter does, leaving the rest of msgs unread.
func (t *teePresenter) Run(msgs <-chan event.Message) error {
	out := make(chan event.Message, cap(msgs))
	done := make(chan error, 1)
	go func() { done <- t.next.Run(out) }()

	for {
		select {
		case err := <-done:
			close(out)
			return err
		case m, ok := <-msgs:
			if !ok {
				close(out)
				return <-done
			}
			if !m.IsTick() {
				LogMessage(t.logger, m)
			}
			select {
			case out <- m:
			case err := <-done:
				close(out)
				return err
			}
		}
	}
}

func (t *teePresenter) Summary() string { return t.next.Summary() }

// LogMessage writes m as a structured record.
func LogMessage(logger *slog.Logger, m event.Message) {
	attrs := []slog.Attr{
		slog.String("kind", m.Kind.String()),
		slog.Int("slot", m.Slot),
		slog.String("scope", m.Scope),
	}
	if m.Path != "" {
		attrs = append(attrs, slog.String("path", m.Path))
	}
	if m.Text != "" {
		attrs = append(attrs, slog.String("text", m.Text))
	}
	if m.Total > 0 {
		attrs = append(attrs, slog.Int("iteration", m.Iteration), slog.Int("total", m.Total))
	}
	level := slog.LevelDebug
	if m.Err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", m.Err.Error()))
	}
	logger.LogAttrs(context.Background(), level, "arcmgr.event", attrs...)
}
