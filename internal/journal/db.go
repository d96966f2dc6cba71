// Package journal keeps a sqlite log of answered inline queries.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Mode distinguishes sampled answers from filtered ones.
type Mode string

const (
	ModeRandom Mode = "random"
	ModeSearch Mode = "search"
)

// ModeFor reports the mode used to answer q.
func ModeFor(q string) Mode {
	if q == "" {
		return ModeRandom
	}
	return ModeSearch
}

// Entry is one answered inline query.
type Entry struct {
	QueryID   string
	SenderID  int64
	Query     string
	Mode      Mode
	Results   int
	AnswerErr string
	At        time.Time
}

// TermCount is a search term with the number of times it was asked.
type TermCount struct {
	Term  string
	Count int
}

// Stats summarises the journal.
type Stats struct {
	Total    int
	Random   int
	Search   int
	Failed   int
	TopTerms []TermCount
}

// Journal records answered inline queries in sqlite.
type Journal struct {
	*sql.DB
}

// Open opens (or creates) the journal at dbPath and applies the schema.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Journal{db}, nil
}

// Record stores e. A zero At is replaced with the current time.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Mode == "" {
		e.Mode = ModeFor(e.Query)
	}

	_, err := j.ExecContext(ctx,
		`INSERT INTO queries (query_id, sender_id, query, mode, results, answer_err, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.QueryID, e.SenderID, e.Query, string(e.Mode), e.Results, e.AnswerErr, e.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("record query %s: %w", e.QueryID, err)
	}
	return nil
}

// Stats aggregates the journal.
func (j *Journal) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := j.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(mode = 'random'), 0),
			COALESCE(SUM(mode = 'search'), 0),
			COALESCE(SUM(answer_err != ''), 0)
		FROM queries`).Scan(&s.Total, &s.Random, &s.Search, &s.Failed)
	if err != nil {
		return Stats{}, fmt.Errorf("query totals: %w", err)
	}

	rows, err := j.QueryContext(ctx, `
		SELECT query, COUNT(*) AS n
		FROM queries
		WHERE mode = 'search'
		GROUP BY query
		ORDER BY n DESC, query ASC
		LIMIT 5`)
	if err != nil {
		return Stats{}, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return Stats{}, err
		}
		s.TopTerms = append(s.TopTerms, tc)
	}
	return s, rows.Err()
}

// Prune deletes entries recorded before the given time.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.ExecContext(ctx, "DELETE FROM queries WHERE created_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return res.RowsAffected()
}
