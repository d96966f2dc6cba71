package logging

import (
	"context"
	"log/slog"
	"regexp"
	"slices"

	"github.com/m-mizutani/masq"
)

// botTokenPattern matches Telegram bot tokens ("<bot id>:<secret>").
var botTokenPattern = regexp.MustCompile(`^\d{5,}:[A-Za-z0-9_-]{30,}$`)

// DefaultRedactOptions returns the masq options applied to every logger.
func DefaultRedactOptions() []masq.Option {
	return []masq.Option{
		masq.WithFieldName("token"),
		masq.WithFieldName("bot_token"),
		masq.WithFieldName("password"),
		masq.WithFieldName("secret"),
		masq.WithFieldPrefix("secret"),
		masq.WithRegex(botTokenPattern),
	}
}

// NewReplaceAttr creates a ReplaceAttr function for slog.HandlerOptions
// that redacts sensitive data.
func NewReplaceAttr(opts ...masq.Option) func(groups []string, a slog.Attr) slog.Attr {
	allOpts := append(DefaultRedactOptions(), opts...)
	return masq.New(allOpts...)
}

// consoleHandler fronts the charm logger, which has no ReplaceAttr hook and
// no level below debug. It redacts attrs and lifts trace records to debug.
type consoleHandler struct {
	next    slog.Handler
	level   slog.Leveler
	replace func([]string, slog.Attr) slog.Attr
	groups  []string
}

func newConsoleHandler(next slog.Handler, level slog.Leveler) *consoleHandler {
	return &consoleHandler{next: next, level: level, replace: NewReplaceAttr()}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(ctx context.Context, r slog.Record) error {
	level := max(r.Level, slog.LevelDebug)
	out := slog.NewRecord(r.Time, level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.replace(h.groups, a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	replaced := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		replaced[i] = h.replace(h.groups, a)
	}
	c := *h
	c.next = h.next.WithAttrs(replaced)
	return &c
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.next = h.next.WithGroup(name)
	c.groups = append(slices.Clip(h.groups), name)
	return &c
}
