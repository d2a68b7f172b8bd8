package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/komidabot/komida"
	"github.com/komidabot/komida/export"
	"github.com/komidabot/komida/menu"
)

const maxUpload = 32 << 20

type handler struct {
	engine komida.Engine
}

func newHandler(e komida.Engine) *handler {
	return &handler{engine: e}
}

// routes registers the API on a fresh mux.
func (h *handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /menu", h.handleLookup)
	mux.HandleFunc("GET /menu/{date}", h.handleMenu)
	mux.HandleFunc("POST /refresh", h.handleRefresh)
	mux.HandleFunc("POST /ingest", h.handleIngest)
	mux.HandleFunc("GET /export", h.handleExport)
	mux.HandleFunc("POST /import", h.handleImport)
	mux.HandleFunc("GET /runs", h.handleRuns)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

type dayMenuResponse struct {
	Title   string       `json:"title"`
	Date    string       `json:"date"`
	Campus  string       `json:"campus"`
	Text    string       `json:"text"`
	Entries []menu.Entry `json:"entries"`
}

// GET /menu?q=cst+tomorrow
func (h *handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	menus, err := h.engine.Lookup(ctx, r.URL.Query().Get("q"))
	if err != nil {
		writeEngineError(w, "lookup", err)
		return
	}

	resp := make([]dayMenuResponse, 0, len(menus))
	for _, dm := range menus {
		entries := dm.Entries
		if entries == nil {
			entries = []menu.Entry{}
		}
		resp = append(resp, dayMenuResponse{
			Title:   dm.Title(),
			Date:    dm.Date.Format(time.DateOnly),
			Campus:  dm.Campus,
			Text:    komida.FormatMenu(dm.Entries),
			Entries: entries,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"menus": resp})
}

// GET /menu/{date}?campus=cmi,cst
func (h *handler) handleMenu(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(time.DateOnly, r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	var campuses []string
	if v := r.URL.Query().Get("campus"); v != "" {
		campuses = strings.Split(v, ",")
	}

	entries, err := h.engine.Menu(r.Context(), date, campuses...)
	if err != nil {
		writeEngineError(w, "menu", err)
		return
	}
	if entries == nil {
		entries = []menu.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":    date.Format(time.DateOnly),
		"entries": entries,
	})
}

// POST /refresh?campus=cmi&force=true
func (h *handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var opts []komida.RefreshOption
	if force, _ := strconv.ParseBool(r.URL.Query().Get("force")); force {
		opts = append(opts, komida.WithForce())
	}

	var results []komida.CampusResult
	if campus := r.URL.Query().Get("campus"); campus != "" {
		res, err := h.engine.RefreshCampus(ctx, campus, opts...)
		if res == nil {
			writeEngineError(w, "refresh", err)
			return
		}
		results = append(results, *res)
	} else {
		var err error
		if results, err = h.engine.Refresh(ctx, opts...); err != nil {
			writeEngineError(w, "refresh", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// POST /ingest
// Multipart upload with a "file" part and a "campus" field.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart upload")
		return
	}
	campus := r.FormValue("campus")
	if campus == "" {
		writeError(w, http.StatusBadRequest, "campus is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	// The loader is picked from the extension, so keep it on the temp file.
	tmpPath, err := saveUpload(file, filepath.Ext(filepath.Base(header.Filename)))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save file")
		slog.Error("saving uploaded file", "error", err)
		return
	}
	defer os.Remove(tmpPath)

	var opts []komida.RefreshOption
	if force, _ := strconv.ParseBool(r.FormValue("force")); force {
		opts = append(opts, komida.WithForce())
	}
	res, err := h.engine.Ingest(ctx, campus, tmpPath, opts...)
	if err != nil {
		writeEngineError(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /export?from=2021-05-03&to=2021-05-07
func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="menu-%s-%s.xlsx"`, from.Format("20060102"), to.Format("20060102")))
	if err := h.engine.Export(r.Context(), w, from, to); err != nil {
		// Nothing has been written yet when the query fails.
		w.Header().Del("Content-Disposition")
		writeEngineError(w, "export", err)
	}
}

// POST /import
// Multipart upload of a workbook written by /export.
func (h *handler) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart upload")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	n, err := h.engine.Import(r.Context(), file)
	if err != nil {
		writeEngineError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inserted": n})
}

// GET /runs?limit=20
func (h *handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 0 and 500")
			return
		}
		limit = n
	}

	runs, err := h.engine.Runs(r.Context(), limit)
	if err != nil {
		writeEngineError(w, "runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Store()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	stats, err := st.Stats(r.Context())
	if err != nil {
		writeEngineError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func saveUpload(src multipart.File, ext string) (string, error) {
	dst, err := os.CreateTemp("", "komida-upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// writeEngineError maps engine errors to a status code and logs the
// server-side ones.
func writeEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, komida.ErrUnknownCampus):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, komida.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, export.ErrNoData), errors.Is(err, komida.ErrParsingFailed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, komida.ErrFetchFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, op+" timed out")
	default:
		writeError(w, http.StatusInternalServerError, op+" failed")
		slog.Error(op+" error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
