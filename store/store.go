// Package store persists parsed menus in SQLite. Menu rows are insert-only:
// re-persisting an entry whose (date, campus, label) key is already stored
// leaves the stored row untouched.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/komidabot/komida/menu"
)

// Document represents a row in the documents table.
type Document struct {
	ID          int64     `json:"id"`
	Campus      string    `json:"campus"`
	URL         string    `json:"url"`
	ContentHash string    `json:"content_hash"`
	WeekEnd     string    `json:"week_end,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Run represents a row in the parse_runs table.
type Run struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Campus    string    `json:"campus"`
	Source    string    `json:"source"`
	WeekEnd   string    `json:"week_end,omitempty"`
	Inserted  int       `json:"inserted"`
	Warnings  int       `json:"warnings"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps the SQLite database for all komida persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Campus pipelines write concurrently; SQLite serialises them behind
	// the busy timeout.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Menu operations ---

// Persist inserts every entry of m and returns how many were new. Entries
// whose key is already stored count as known and are not overwritten.
func (s *Store) Persist(ctx context.Context, m menu.Menu) (int, error) {
	inserted := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO menu (date, campus, type, item, price_student, price_staff)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range m.Entries() {
			_, err := stmt.ExecContext(ctx,
				e.Date.Format(time.DateOnly), e.Campus, e.Label, e.Item, e.PriceStudent, e.PriceStaff)
			if isDuplicate(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("inserting %s/%s/%s: %w", e.Campus, e.Date.Format(time.DateOnly), e.Label, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// MenuFor returns the entries served on date. With no campuses given,
// every campus is returned.
func (s *Store) MenuFor(ctx context.Context, date time.Time, campuses ...string) ([]menu.Entry, error) {
	query := `SELECT date, campus, type, item, price_student, price_staff FROM menu WHERE date = ?`
	args := []any{date.Format(time.DateOnly)}
	if len(campuses) > 0 {
		query += " AND campus IN (?" + repeatPlaceholders(len(campuses)-1) + ")"
		for _, c := range campuses {
			args = append(args, c)
		}
	}
	return s.queryEntries(ctx, query, args...)
}

// Entries returns the entries served between from and to, both inclusive.
func (s *Store) Entries(ctx context.Context, from, to time.Time) ([]menu.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT date, campus, type, item, price_student, price_staff
		FROM menu WHERE date BETWEEN ? AND ?
	`, from.Format(time.DateOnly), to.Format(time.DateOnly))
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]menu.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []menu.Entry
	for rows.Next() {
		var (
			e     menu.Entry
			date  string
			price [2]sql.NullFloat64
		)
		if err := rows.Scan(&date, &e.Campus, &e.Label, &e.Item, &price[0], &price[1]); err != nil {
			return nil, err
		}
		if e.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, fmt.Errorf("stored date %q: %w", date, err)
		}
		e.PriceStudent, e.PriceStaff = price[0].Float64, price[1].Float64
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	menu.SortEntries(entries)
	return entries, nil
}

// --- Document operations ---

// DocumentSeen reports whether a document with this content hash was
// already ingested for campus.
func (s *Store) DocumentSeen(ctx context.Context, campus, contentHash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE campus = ? AND content_hash = ?",
		campus, contentHash).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordDocument registers an ingested document. Recording the same
// content twice for a campus is a no-op.
func (s *Store) RecordDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (campus, url, content_hash, week_end)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(campus, content_hash) DO NOTHING
	`, doc.Campus, doc.URL, doc.ContentHash, doc.WeekEnd)
	return err
}

// Documents lists the registered documents of campus, newest first.
func (s *Store) Documents(ctx context.Context, campus string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campus, url, content_hash, COALESCE(week_end, ''), fetched_at
		FROM documents WHERE campus = ? ORDER BY fetched_at DESC, id DESC
	`, campus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Campus, &d.URL, &d.ContentHash, &d.WeekEnd, &d.FetchedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// --- Run log ---

// LogRun appends a parse attempt to the audit log.
func (s *Store) LogRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parse_runs (run_id, campus, source, week_end, inserted, warnings, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.Campus, r.Source, r.WeekEnd, r.Inserted, r.Warnings, nullString(r.Error))
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, campus, COALESCE(source, ''), COALESCE(week_end, ''),
			inserted, warnings, COALESCE(error, ''), created_at
		FROM parse_runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.RunID, &r.Campus, &r.Source, &r.WeekEnd,
			&r.Inserted, &r.Warnings, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Stats holds row counts and the stored date range.
type Stats struct {
	Entries   int    `json:"entries"`
	Campuses  int    `json:"campuses"`
	Documents int    `json:"documents"`
	Runs      int    `json:"runs"`
	FirstDate string `json:"first_date,omitempty"`
	LastDate  string `json:"last_date,omitempty"`
}

// Stats returns counts of menu entries, campuses, documents and runs.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  any
	}{
		{"SELECT COUNT(*) FROM menu", &stats.Entries},
		{"SELECT COUNT(DISTINCT campus) FROM menu", &stats.Campuses},
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM parse_runs", &stats.Runs},
		{"SELECT COALESCE(MIN(date), '') FROM menu", &stats.FirstDate},
		{"SELECT COALESCE(MAX(date), '') FROM menu", &stats.LastDate},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// HashContent returns the hex SHA-256 of a document's bytes.
func HashContent(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isDuplicate reports whether err is a primary-key or unique violation.
func isDuplicate(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func repeatPlaceholders(n int) string {
	return strings.Repeat(", ?", n)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
