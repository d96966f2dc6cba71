package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eliseohh/quotebot/internal/journal"
	"github.com/eliseohh/quotebot/internal/logging"
	"github.com/eliseohh/quotebot/internal/quotes"
	tele "gopkg.in/telebot.v3"
)

const journalTimeout = 2 * time.Second

// Journal persists answered queries.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
	Stats(ctx context.Context) (journal.Stats, error)
}

// Metrics observes answered queries.
type Metrics interface {
	ObserveQuery(mode string, results int)
	AnswerFailed()
}

type Bot struct {
	api     *tele.Bot
	idx     *quotes.Index
	cfg     Config
	journal Journal
	metrics Metrics
	logger  *slog.Logger
}

type Config struct {
	Token       string
	URL         string // Bot API endpoint, empty for Telegram's
	PollTimeout time.Duration
	CacheTime   int
	Synchronous bool
	Offline     bool
}

type Option func(*Bot)

func WithJournal(j Journal) Option {
	return func(b *Bot) { b.journal = j }
}

func WithMetrics(m Metrics) Option {
	return func(b *Bot) { b.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) { b.logger = l }
}

func New(cfg Config, idx *quotes.Index, opts ...Option) (*Bot, error) {
	bot := &Bot{idx: idx, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(bot)
	}

	pref := tele.Settings{
		URL:         cfg.URL,
		Token:       cfg.Token,
		Poller:      &tele.LongPoller{Timeout: cfg.PollTimeout},
		Synchronous: cfg.Synchronous,
		Offline:     cfg.Offline,
		OnError:     bot.onError,
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	bot.api = b
	bot.register()
	return bot, nil
}

// Start blocks in the poll loop until Stop is called.
func (b *Bot) Start() {
	b.logger.Info("bot started",
		slog.String("username", b.api.Me.Username),
		slog.Int("quotations", b.idx.Len()),
	)
	b.api.Start()
}

func (b *Bot) Stop() {
	b.api.Stop()
	b.logger.Info("bot stopped")
}

// Run polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Start()
	}()

	select {
	case <-ctx.Done():
		b.Stop()
		<-done
	case <-done:
	}
}

func (b *Bot) register() {
	b.api.Handle(tele.OnQuery, b.handleQuery)

	b.api.Handle("/start", b.handleHelp)
	b.api.Handle("/help", b.handleHelp)
	b.api.Handle("/stats", b.handleStats)

	// Anything else typed in the private chat gets the usage text.
	b.api.Handle(tele.OnText, b.handleHelp)
}

func (b *Bot) onError(err error, c tele.Context) {
	attrs := []any{slog.Any("error", err)}
	if c != nil {
		attrs = append(attrs, slog.Int("update_id", c.Update().ID))
	}
	b.logger.Error("handler failed", attrs...)
}

// handleQuery answers one inline query. Answer failures are logged and
// swallowed so they never reach other updates.
func (b *Bot) handleQuery(c tele.Context) error {
	q := c.Query()
	rs := b.idx.Query(q.Text, nil)
	mode := journal.ModeFor(q.Text)

	err := c.Answer(&tele.QueryResponse{
		Results:   articles(rs),
		CacheTime: b.cfg.CacheTime,
	})

	entry := journal.Entry{
		QueryID: q.ID,
		Query:   q.Text,
		Mode:    mode,
		Results: len(rs),
	}
	if q.Sender != nil {
		entry.SenderID = q.Sender.ID
	}

	log := b.logger.With(slog.String("query_id", q.ID))
	if err != nil {
		entry.AnswerErr = err.Error()
		if b.metrics != nil {
			b.metrics.AnswerFailed()
		}
		log.Error("answer inline query",
			slog.String("query", q.Text),
			slog.Any("error", err),
		)
	} else {
		log.Log(context.Background(), logging.LevelTrace, "answered inline query",
			slog.String("query", q.Text),
			slog.String("mode", string(mode)),
			slog.Int("results", len(rs)),
		)
	}

	if b.metrics != nil {
		b.metrics.ObserveQuery(string(mode), len(rs))
	}
	b.record(entry)
	return nil
}

func (b *Bot) record(e journal.Entry) {
	if b.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if err := b.journal.Record(ctx, e); err != nil {
		b.logger.Warn("journal write failed", slog.String("query_id", e.QueryID), slog.Any("error", err))
	}
}

func (b *Bot) handleHelp(c tele.Context) error {
	name := b.api.Me.Username
	if name == "" {
		name = "this_bot"
	}
	return c.Send(fmt.Sprintf(
		"I work inline. In any chat type:\n\n@%s <words>  to search quotations\n@%s  for %d random ones",
		name, name, quotes.SampleSize,
	))
}

// /stats
func (b *Bot) handleStats(c tele.Context) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Quotations: %d\n", b.idx.Len())

	if b.journal == nil {
		sb.WriteString("Journal disabled.")
		return c.Send(sb.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	s, err := b.journal.Stats(ctx)
	if err != nil {
		b.logger.Warn("journal stats failed", slog.Any("error", err))
		sb.WriteString("Journal unavailable.")
		return c.Send(sb.String())
	}

	fmt.Fprintf(&sb, "Inline queries: %d (random %d, search %d, failed %d)", s.Total, s.Random, s.Search, s.Failed)
	if len(s.TopTerms) > 0 {
		sb.WriteString("\nTop searches:")
		for i, tc := range s.TopTerms {
			fmt.Fprintf(&sb, "\n%d. %q (%d)", i+1, tc.Term, tc.Count)
		}
	}
	return c.Send(sb.String())
}

func articles(rs quotes.ResultSet) tele.Results {
	out := make(tele.Results, 0, len(rs))
	for _, it := range rs {
		a := &tele.ArticleResult{Title: it.Text, Text: it.Text}
		a.SetResultID(it.ID)
		out = append(out, a)
	}
	return out
}
