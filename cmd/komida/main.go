// Command komida refreshes, stores and serves the campus restaurant menus.
//
// Usage:
//
//	komida [-config komida.yaml] [-v] <command> [flags] [args]
//
// Commands:
//
//	refresh  fetch and parse the week menus (all campuses, or -campus)
//	ingest   parse a local PDF or fragment dump as the menu of -campus
//	show     print the menus matching a free-text request, e.g. "cst tomorrow"
//	serve    run the HTTP API and the scheduled refresh
//	export   write the stored entries of a date range to an XLSX workbook
//	import   store the entries of an exported workbook
//	dump     print the text fragments of a PDF as JSON, for layout authoring
//	runs     list the most recent parse runs
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/komidabot/komida"
	"github.com/komidabot/komida/parser"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, cfg komida.Config, args []string) error
}

var commands = []command{
	{"refresh", "[-campus code] [-force]", runRefresh},
	{"ingest", "-campus code <file>", runIngest},
	{"show", "[request words...]", runShow},
	{"serve", "[-addr :8080] [-schedule spec]", runServe},
	{"export", "-from YYYY-MM-DD -to YYYY-MM-DD [-o menu.xlsx]", runExport},
	{"import", "<file.xlsx>", runImport},
	{"dump", "<file.pdf>", runDump},
	{"runs", "[-n 20]", runRuns},
}

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Usage = usage
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	// Structured JSON logging on stderr; stdout carries command output.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == flag.Arg(0) {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "komida: unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, cfg, flag.Args()[1:]); err != nil {
		slog.Error(cmd.name+" failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: komida [-config file] [-v] <command> [flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.usage)
	}
}

// loadConfig reads the config file, if any, then applies KOMIDA_*
// environment overrides.
func loadConfig(path string) (komida.Config, error) {
	cfg := komida.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = komida.LoadConfig(path); err != nil {
			return cfg, err
		}
	}

	if v := os.Getenv("KOMIDA_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("KOMIDA_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("KOMIDA_LOCALE"); v != "" {
		cfg.Locale = v
	}
	if v := os.Getenv("KOMIDA_LAYOUT_VERSION"); v != "" {
		cfg.LayoutVersion = v
	}
	if v := os.Getenv("KOMIDA_LAYOUT_PATH"); v != "" {
		cfg.LayoutPath = v
	}
	if v := os.Getenv("KOMIDA_SCHEDULE"); v != "" {
		cfg.Schedule = v
	}
	if v := os.Getenv("KOMIDA_DEFAULT_CAMPUS"); v != "" {
		cfg.DefaultCampus = v
	}
	if v := os.Getenv("KOMIDA_STALENESS_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: KOMIDA_STALENESS_DAYS: %v", komida.ErrInvalidConfig, err)
		}
		cfg.StalenessDays = n
	}
	return cfg, cfg.Validate()
}

func openEngine(cfg komida.Config) (komida.Engine, error) {
	e, err := komida.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

func runRefresh(ctx context.Context, cfg komida.Config, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	campus := fs.String("campus", "", "Refresh a single campus")
	force := fs.Bool("force", false, "Re-parse documents that were already ingested")
	fs.Parse(args)

	e, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	var opts []komida.RefreshOption
	if *force {
		opts = append(opts, komida.WithForce())
	}

	var results []komida.CampusResult
	if *campus != "" {
		r, err := e.RefreshCampus(ctx, *campus, opts...)
		if r == nil {
			return err
		}
		results = append(results, *r)
	} else if results, err = e.Refresh(ctx, opts...); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if err := printJSON(os.Stdout, results); err != nil {
		return err
	}
	if failed == len(results) && failed > 0 {
		return fmt.Errorf("all %d campuses failed", failed)
	}
	return nil
}

func runIngest(ctx context.Context, cfg komida.Config, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	campus := fs.String("campus", "", "Campus code the document belongs to")
	force := fs.Bool("force", false, "Re-parse a document that was already ingested")
	fs.Parse(args)
	if *campus == "" || fs.NArg() != 1 {
		return errors.New("usage: komida ingest -campus code <file>")
	}

	e, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	var opts []komida.RefreshOption
	if *force {
		opts = append(opts, komida.WithForce())
	}
	r, err := e.Ingest(ctx, *campus, fs.Arg(0), opts...)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, r)
}

func runShow(ctx context.Context, cfg komida.Config, args []string) error {
	e, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	menus, err := e.Lookup(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if len(menus) == 0 {
		fmt.Println("No menu found.")
		return nil
	}
	for i, dm := range menus {
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(dm.Title())
		fmt.Println(komida.FormatMenu(dm.Entries))
	}
	return nil
}

func runExport(ctx context.Context, cfg komida.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fromStr := fs.String("from", "", "First date (YYYY-MM-DD)")
	toStr := fs.String("to", "", "Last date (YYYY-MM-DD), defaults to -from")
	out := fs.String("o", "menu.xlsx", "Output workbook")
	fs.Parse(args)

	from, to, err := parseRange(*fromStr, *toStr)
	if err != nil {
		return err
	}

	e, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := e.Export(ctx, f, from, to); err != nil {
		f.Close()
		os.Remove(*out)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("exported", "path", *out, "from", *fromStr, "to", to.Format(time.DateOnly))
	return nil
}

func runImport(ctx context.Context, cfg komida.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: komida import <file.xlsx>")
	}
	e, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := e.Import(ctx, f)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, map[string]any{"path": args[0], "inserted": n})
}

func runDump(ctx context.Context, _ komida.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: komida dump <file.pdf>")
	}
	page, err := parser.NewRegistry().LoadFile(ctx, args[0])
	if err != nil {
		return err
	}
	return parser.WriteJSON(os.Stdout, page)
}

func runRuns(ctx context.Context, cfg komida.Config, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	n := fs.Int("n", 20, "Number of runs")
	fs.Parse(args)

	e, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	runs, err := e.Runs(ctx, *n)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, runs)
}

// parseRange parses an inclusive YYYY-MM-DD date range; an empty to
// means the single day from.
func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	if fromStr == "" {
		return time.Time{}, time.Time{}, errors.New("from date is required")
	}
	from, err := time.Parse(time.DateOnly, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %w", err)
	}
	if toStr == "" {
		return from, from, nil
	}
	to, err := time.Parse(time.DateOnly, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %w", err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to date %s before from date %s", toStr, fromStr)
	}
	return from, to, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
