// Package komida keeps a database of the university restaurants' week
// menus. It discovers each campus's menu document, reads the dishes and
// prices out of fixed page regions and stores them as dated entries.
package komida

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	neturl "net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/komidabot/komida/export"
	"github.com/komidabot/komida/fetch"
	"github.com/komidabot/komida/layout"
	"github.com/komidabot/komida/menu"
	"github.com/komidabot/komida/parser"
	"github.com/komidabot/komida/store"
)

// Engine is the main entry point for menu ingestion and lookup.
type Engine interface {
	// Refresh fetches, parses and stores the menu of every campus marked
	// for refresh. Campuses run in parallel and fail independently.
	Refresh(ctx context.Context, opts ...RefreshOption) ([]CampusResult, error)

	// RefreshCampus runs the pipeline for one campus.
	RefreshCampus(ctx context.Context, code string, opts ...RefreshOption) (*CampusResult, error)

	// Ingest parses a local document (PDF, or a JSON fragment dump) as the
	// menu of campus.
	Ingest(ctx context.Context, campus, path string, opts ...RefreshOption) (*CampusResult, error)

	// Menu returns the stored entries for date. With no campuses given,
	// every campus is returned.
	Menu(ctx context.Context, date time.Time, campuses ...string) ([]menu.Entry, error)

	// Lookup answers a free-text request such as "cst tomorrow", fetching
	// the menus once when nothing is stored yet.
	Lookup(ctx context.Context, text string) ([]DayMenu, error)

	// Export writes the entries between from and to as an XLSX workbook.
	Export(ctx context.Context, w io.Writer, from, to time.Time) error

	// Import stores the entries of a workbook written by Export.
	Import(ctx context.Context, r io.Reader) (int, error)

	// Runs returns the most recent parse runs.
	Runs(ctx context.Context, limit int) ([]store.Run, error)

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// CampusResult reports the outcome of one campus pipeline.
type CampusResult struct {
	RunID    string    `json:"run_id"`
	Campus   string    `json:"campus"`
	Source   string    `json:"source,omitempty"`
	WeekEnd  time.Time `json:"week_end,omitzero"`
	Entries  int       `json:"entries"`
	Inserted int       `json:"inserted"`
	Warnings []string  `json:"warnings,omitempty"`
	Skipped  bool      `json:"skipped,omitempty"` // document already ingested
	Err      error     `json:"-"`
	Error    string    `json:"error,omitempty"`
}

// DayMenu is the stored menu of one campus on one day.
type DayMenu struct {
	Date    time.Time    `json:"date"`
	Campus  string       `json:"campus"`
	Entries []menu.Entry `json:"entries"`
}

// Option configures an engine.
type Option func(*engine)

// WithClock replaces the wall clock used as the staleness reference.
func WithClock(now func() time.Time) Option {
	return func(e *engine) { e.now = now }
}

// WithHTTPClient replaces the HTTP client used for fetching.
func WithHTTPClient(hc *http.Client) Option {
	return func(e *engine) { e.httpClient = hc }
}

// RefreshOption configures a single refresh or ingest.
type RefreshOption func(*refreshOptions)

type refreshOptions struct {
	force bool
	runID string
}

// WithForce re-parses documents whose content was already ingested.
func WithForce() RefreshOption {
	return func(o *refreshOptions) { o.force = true }
}

// WithRunID sets the run id recorded in the parse log.
func WithRunID(id string) RefreshOption {
	return func(o *refreshOptions) { o.runID = id }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg        Config
	store      *store.Store
	fetcher    *fetch.Client
	httpClient *http.Client
	loaders    *parser.Registry
	table      *layout.Table
	locale     *menu.Locale
	now        func() time.Time
}

// New creates a new komida engine with the given configuration.
func New(cfg Config, opts ...Option) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &engine{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(e)
	}

	ix, err := layout.DefaultIndex()
	if err != nil {
		return nil, fmt.Errorf("loading layout tables: %w", err)
	}
	if cfg.LayoutPath != "" {
		if _, err := ix.LoadFile(cfg.LayoutPath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if cfg.LayoutVersion != "" {
		e.table, err = ix.Table(cfg.LayoutVersion)
	} else {
		e.table, err = ix.Latest()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if cfg.LocalePath != "" {
		e.locale, err = menu.LoadLocaleFile(cfg.LocalePath)
	} else {
		e.locale, err = menu.LoadLocale(cfg.Locale)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	fetchOpts := []fetch.Option{fetch.WithUserAgent(cfg.UserAgent)}
	if e.httpClient != nil {
		fetchOpts = append(fetchOpts, fetch.WithHTTPClient(e.httpClient))
	}
	e.fetcher = fetch.New(cfg.BaseURL, time.Duration(cfg.FetchTimeout)*time.Second, fetchOpts...)
	e.loaders = parser.NewRegistry()

	s, err := store.New(cfg.resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	e.store = s

	slog.Debug("komida: engine ready",
		"layout", e.table.Version,
		"locale", e.locale.Name,
		"campuses", len(cfg.Campuses))
	return e, nil
}

// Refresh runs the pipeline of every refreshable campus.
func (e *engine) Refresh(ctx context.Context, opts ...RefreshOption) ([]CampusResult, error) {
	o := e.refreshOptions(opts)

	var campuses []Campus
	for _, c := range e.cfg.Campuses {
		if c.Refresh {
			campuses = append(campuses, c)
		}
	}

	results := make([]CampusResult, len(campuses))
	var g errgroup.Group
	if e.cfg.Concurrency > 0 {
		g.SetLimit(e.cfg.Concurrency)
	}
	for i, c := range campuses {
		g.Go(func() error {
			results[i] = e.refresh(ctx, c, o)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	slog.Info("komida: refresh finished", "run_id", o.runID, "campuses", len(results), "failed", failed)
	return results, ctx.Err()
}

// RefreshCampus runs the pipeline of one campus.
func (e *engine) RefreshCampus(ctx context.Context, code string, opts ...RefreshOption) (*CampusResult, error) {
	c, ok := e.cfg.campus(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCampus, code)
	}
	r := e.refresh(ctx, c, e.refreshOptions(opts))
	return &r, r.Err
}

func (e *engine) refresh(ctx context.Context, c Campus, o refreshOptions) CampusResult {
	log := slog.With("run_id", o.runID, "campus", c.Code)

	url, err := e.fetcher.MenuURL(ctx, c.Heading)
	if err != nil {
		return e.finish(ctx, log, CampusResult{RunID: o.runID, Campus: c.Code},
			fmt.Errorf("%w: %w", ErrFetchFailed, err))
	}
	data, err := e.fetcher.Download(ctx, url)
	if err != nil {
		return e.finish(ctx, log, CampusResult{RunID: o.runID, Campus: c.Code, Source: url},
			fmt.Errorf("%w: %w", ErrFetchFailed, err))
	}
	return e.process(ctx, log, c.Code, url, documentFormat(url, data), data, o)
}

// documentFormat sniffs PDF content and otherwise trusts the URL's
// extension.
func documentFormat(rawURL string, data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "pdf"
	}
	if u, err := neturl.Parse(rawURL); err == nil {
		if ext := strings.TrimPrefix(path.Ext(u.Path), "."); ext != "" {
			return strings.ToLower(ext)
		}
	}
	return "pdf"
}

// Ingest parses a local file as the menu of campus.
func (e *engine) Ingest(ctx context.Context, campus, path string, opts ...RefreshOption) (*CampusResult, error) {
	if _, ok := e.cfg.campus(campus); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCampus, campus)
	}
	o := e.refreshOptions(opts)
	log := slog.With("run_id", o.runID, "campus", campus)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	r := e.process(ctx, log, campus, absPath, format, data, o)
	return &r, r.Err
}

// process parses one downloaded or local document and stores its menu.
func (e *engine) process(ctx context.Context, log *slog.Logger, campus, source, format string, data []byte, o refreshOptions) CampusResult {
	res := CampusResult{RunID: o.runID, Campus: campus, Source: source}

	hash := store.HashContent(data)
	if !o.force {
		seen, err := e.store.DocumentSeen(ctx, campus, hash)
		if err != nil {
			return e.finish(ctx, log, res, fmt.Errorf("checking document: %w", err))
		}
		if seen {
			log.Info("komida: document unchanged, skipping", "source", source)
			res.Skipped = true
			return res
		}
	}

	loader, err := e.loaders.Get(format)
	if err != nil {
		return e.finish(ctx, log, res, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err))
	}
	page, err := loader.Load(ctx, data)
	if err != nil {
		return e.finish(ctx, log, res, fmt.Errorf("%w: %w", ErrParsingFailed, err))
	}

	parsed, err := menu.Parse(page, e.table, menu.Options{
		Campus:    campus,
		Locale:    e.locale,
		Reference: e.now(),
		Window:    e.cfg.StalenessDays,
	})
	if err != nil {
		return e.finish(ctx, log, res, fmt.Errorf("%w: %w", ErrParsingFailed, err))
	}
	res.WeekEnd = parsed.Week.End
	res.Entries = len(parsed.Menu)
	for _, w := range parsed.Warnings {
		res.Warnings = append(res.Warnings, w.Error())
	}

	res.Inserted, err = e.store.Persist(ctx, parsed.Menu)
	if err != nil {
		return e.finish(ctx, log, res, fmt.Errorf("storing menu: %w", err))
	}

	if err := e.store.RecordDocument(ctx, store.Document{
		Campus:      campus,
		URL:         source,
		ContentHash: hash,
		WeekEnd:     parsed.Week.End.Format(time.DateOnly),
	}); err != nil {
		log.Warn("komida: recording document failed", "error", err)
	}
	return e.finish(ctx, log, res, nil)
}

// finish logs the outcome of a pipeline and appends it to the run log.
func (e *engine) finish(ctx context.Context, log *slog.Logger, res CampusResult, err error) CampusResult {
	run := store.Run{
		RunID:    res.RunID,
		Campus:   res.Campus,
		Source:   res.Source,
		Inserted: res.Inserted,
		Warnings: len(res.Warnings),
	}
	if !res.WeekEnd.IsZero() {
		run.WeekEnd = res.WeekEnd.Format(time.DateOnly)
	}

	if err != nil {
		res.Err = err
		res.Error = err.Error()
		run.Error = res.Error
		log.Error("komida: campus pipeline failed", "source", res.Source, "error", err)
	} else {
		log.Info("komida: menu stored",
			"source", res.Source,
			"week_end", run.WeekEnd,
			"entries", res.Entries,
			"inserted", res.Inserted,
			"warnings", len(res.Warnings))
	}

	// Logged even when ctx was cancelled.
	if logErr := e.store.LogRun(context.WithoutCancel(ctx), run); logErr != nil {
		log.Warn("komida: writing run log failed", "error", logErr)
	}
	return res
}

func (e *engine) refreshOptions(opts []RefreshOption) refreshOptions {
	var o refreshOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o
}

// Menu returns the stored entries for date.
func (e *engine) Menu(ctx context.Context, date time.Time, campuses ...string) ([]menu.Entry, error) {
	for _, c := range campuses {
		if _, ok := e.cfg.campus(c); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCampus, c)
		}
	}
	return e.store.MenuFor(ctx, date, campuses...)
}

// Lookup answers a free-text menu request.
func (e *engine) Lookup(ctx context.Context, text string) ([]DayMenu, error) {
	q := ParseQuery(text, e.now(), &e.cfg)

	menus, err := e.lookup(ctx, q)
	if err != nil || len(menus) > 0 {
		return menus, err
	}

	slog.Info("komida: no stored menu, refreshing", "campuses", q.Campuses)
	runID := uuid.NewString()
	for _, c := range q.Campuses {
		if _, err := e.RefreshCampus(ctx, c, WithRunID(runID)); err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return e.lookup(ctx, q)
}

func (e *engine) lookup(ctx context.Context, q Query) ([]DayMenu, error) {
	var menus []DayMenu
	for _, d := range q.Dates {
		for _, c := range q.Campuses {
			entries, err := e.store.MenuFor(ctx, d, c)
			if err != nil {
				return nil, err
			}
			if len(entries) == 0 {
				continue
			}
			menus = append(menus, DayMenu{Date: d, Campus: c, Entries: entries})
		}
	}
	return menus, nil
}

// Export writes a workbook of the stored entries between from and to.
func (e *engine) Export(ctx context.Context, w io.Writer, from, to time.Time) error {
	entries, err := e.store.Entries(ctx, from, to)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}
	return export.WriteWorkbook(w, entries)
}

// Import stores the entries of a workbook. Known entries are left as
// they are.
func (e *engine) Import(ctx context.Context, r io.Reader) (int, error) {
	entries, err := export.ReadWorkbook(r)
	if err != nil {
		return 0, err
	}
	for _, en := range entries {
		if _, ok := e.cfg.campus(en.Campus); !ok {
			return 0, fmt.Errorf("%w: %q in workbook", ErrUnknownCampus, en.Campus)
		}
	}
	return e.store.Persist(ctx, export.ToMenu(entries))
}

// Runs returns the most recent parse runs.
func (e *engine) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return e.store.RecentRuns(ctx, limit)
}

// Store returns the underlying store.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// IsStale reports whether err rejected a document for covering another week.
func IsStale(err error) bool {
	return errors.Is(err, menu.ErrStaleDocument)
}
