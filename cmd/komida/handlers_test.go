package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/komidabot/komida"
	"github.com/komidabot/komida/menu"
	"github.com/komidabot/komida/store"
)

var monday = time.Date(2021, time.May, 3, 0, 0, 0, 0, time.UTC)

type fakeEngine struct {
	entries  []menu.Entry
	lastText string
	forced   bool
	ingested string
	ingestFn func(path string) error
}

func (f *fakeEngine) Refresh(ctx context.Context, opts ...komida.RefreshOption) ([]komida.CampusResult, error) {
	return []komida.CampusResult{
		{RunID: "r1", Campus: "cmi", Inserted: 25, Entries: 25},
		{RunID: "r1", Campus: "cst", Err: komida.ErrFetchFailed, Error: komida.ErrFetchFailed.Error()},
	}, nil
}

func (f *fakeEngine) RefreshCampus(ctx context.Context, code string, opts ...komida.RefreshOption) (*komida.CampusResult, error) {
	if code != "cmi" {
		return nil, fmt.Errorf("%w: %q", komida.ErrUnknownCampus, code)
	}
	f.forced = len(opts) > 0
	return &komida.CampusResult{RunID: "r2", Campus: code, Skipped: !f.forced}, nil
}

func (f *fakeEngine) Ingest(ctx context.Context, campus, path string, opts ...komida.RefreshOption) (*komida.CampusResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f.ingested = string(data)
	if f.ingestFn != nil {
		if err := f.ingestFn(path); err != nil {
			return nil, err
		}
	}
	return &komida.CampusResult{Campus: campus, Source: path, Inserted: 25}, nil
}

func (f *fakeEngine) Menu(ctx context.Context, date time.Time, campuses ...string) ([]menu.Entry, error) {
	for _, c := range campuses {
		if c != "cmi" {
			return nil, fmt.Errorf("%w: %q", komida.ErrUnknownCampus, c)
		}
	}
	var out []menu.Entry
	for _, e := range f.entries {
		if e.Date.Equal(date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEngine) Lookup(ctx context.Context, text string) ([]komida.DayMenu, error) {
	f.lastText = text
	return []komida.DayMenu{{Date: monday, Campus: "cmi", Entries: f.entries}}, nil
}

func (f *fakeEngine) Export(ctx context.Context, w io.Writer, from, to time.Time) error {
	_, err := fmt.Fprintf(w, "xlsx %s %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	return err
}

func (f *fakeEngine) Import(ctx context.Context, r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	return len(data), err
}

func (f *fakeEngine) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	return []store.Run{{ID: 1, RunID: "r1", Campus: "cmi", Inserted: limit}}, nil
}

func (f *fakeEngine) Store() *store.Store { return nil }
func (f *fakeEngine) Close() error        { return nil }

func newTestServer(t *testing.T, apiKey string) (*fakeEngine, *httptest.Server) {
	t.Helper()
	fe := &fakeEngine{entries: []menu.Entry{
		{Date: monday, Campus: "cmi", Label: "soup", Item: "Tomatensoep", PriceStudent: 1.1, PriceStaff: 1.5},
		{Date: monday, Campus: "cmi", Label: "meat", Item: "Stoofvlees", PriceStudent: 4.9, PriceStaff: 6.3},
	}}
	var h http.Handler = newHandler(fe).routes()
	h = authMiddleware(apiKey, h)
	h = recoveryMiddleware(h)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return fe, srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestHandleLookup(t *testing.T) {
	fe, srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/menu?q=middelheim+maandag")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body struct {
		Menus []dayMenuResponse `json:"menus"`
	}
	decode(t, resp, &body)

	if fe.lastText != "middelheim maandag" {
		t.Errorf("lookup text: %q", fe.lastText)
	}
	if len(body.Menus) != 1 {
		t.Fatalf("got %d menus", len(body.Menus))
	}
	m := body.Menus[0]
	if m.Title != "Menu komida CMI on Monday 03 May" || m.Date != "2021-05-03" {
		t.Errorf("menu header: %+v", m)
	}
	if !strings.HasPrefix(m.Text, "soup: Tomatensoep (€1.10 / €1.50)\nmeat:") {
		t.Errorf("text: %q", m.Text)
	}
	if len(m.Entries) != 2 || m.Entries[1].Label != "meat" {
		t.Errorf("entries: %+v", m.Entries)
	}
}

func TestHandleMenu(t *testing.T) {
	_, srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/menu/2021-05-03?campus=cmi")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Date    string       `json:"date"`
		Entries []menu.Entry `json:"entries"`
	}
	decode(t, resp, &body)
	if body.Date != "2021-05-03" || len(body.Entries) != 2 {
		t.Errorf("body: %+v", body)
	}

	tests := []struct {
		path   string
		status int
	}{
		{"/menu/2021-05-04", http.StatusOK},
		{"/menu/03-05-2021", http.StatusBadRequest},
		{"/menu/2021-05-03?campus=cxx", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("%s: status %d, want %d", tt.path, resp.StatusCode, tt.status)
		}
	}
}

func TestHandleRefresh(t *testing.T) {
	fe, srv := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/refresh", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Results []komida.CampusResult `json:"results"`
	}
	decode(t, resp, &body)
	if len(body.Results) != 2 || body.Results[1].Error == "" || body.Results[0].Inserted != 25 {
		t.Errorf("results: %+v", body.Results)
	}

	resp, err = http.Post(srv.URL+"/refresh?campus=cmi&force=true", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !fe.forced {
		t.Errorf("forced refresh: status %d forced %v", resp.StatusCode, fe.forced)
	}

	resp, err = http.Post(srv.URL+"/refresh?campus=cxx", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown campus: status %d", resp.StatusCode)
	}
}

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, content)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHandleIngest(t *testing.T) {
	fe, srv := newTestServer(t, "")

	var gotExt string
	fe.ingestFn = func(path string) error {
		gotExt = filepath.Ext(path)
		return nil
	}

	body, ct := multipartBody(t, map[string]string{"campus": "cgb"}, "../../week18.json", `{"fragments":[]}`)
	resp, err := http.Post(srv.URL+"/ingest", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	var res komida.CampusResult
	decode(t, resp, &res)
	if resp.StatusCode != http.StatusOK || res.Campus != "cgb" || res.Inserted != 25 {
		t.Errorf("ingest: status %d result %+v", resp.StatusCode, res)
	}
	if gotExt != ".json" || fe.ingested != `{"fragments":[]}` {
		t.Errorf("upload: ext %q content %q", gotExt, fe.ingested)
	}
	if _, err := os.Stat(res.Source); !os.IsNotExist(err) {
		t.Errorf("temp file %s not removed", res.Source)
	}

	fe.ingestFn = func(string) error { return fmt.Errorf("%w: %q", komida.ErrUnsupportedFormat, "txt") }
	body, ct = multipartBody(t, map[string]string{"campus": "cgb"}, "menu.txt", "soep")
	resp, err = http.Post(srv.URL+"/ingest", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("txt upload: status %d", resp.StatusCode)
	}

	body, ct = multipartBody(t, nil, "menu.pdf", "%PDF")
	resp, err = http.Post(srv.URL+"/ingest", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing campus: status %d", resp.StatusCode)
	}
}

func TestHandleExportImport(t *testing.T) {
	_, srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/export?from=2021-05-03&to=2021-05-07")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(data) != "xlsx 2021-05-03 2021-05-07" {
		t.Errorf("export body: %q", data)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "menu-20210503-20210507.xlsx") {
		t.Errorf("content disposition: %q", cd)
	}

	resp, err = http.Get(srv.URL + "/export?from=2021-05-07&to=2021-05-03")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("reversed range: status %d", resp.StatusCode)
	}

	body, ct := multipartBody(t, nil, "menu.xlsx", "12345")
	resp, err = http.Post(srv.URL+"/import", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	var res struct {
		Inserted int `json:"inserted"`
	}
	decode(t, resp, &res)
	if res.Inserted != 5 {
		t.Errorf("import: %+v", res)
	}
}

func TestHandleRunsAndStats(t *testing.T) {
	_, srv := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/runs?limit=7")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Runs []store.Run `json:"runs"`
	}
	decode(t, resp, &body)
	if len(body.Runs) != 1 || body.Runs[0].Inserted != 7 {
		t.Errorf("runs: %+v", body.Runs)
	}

	for path, want := range map[string]int{
		"/runs?limit=x": http.StatusBadRequest,
		"/stats":        http.StatusServiceUnavailable,
		"/health":       http.StatusOK,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("%s: status %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, srv := newTestServer(t, "secret")

	resp, err := http.Get(srv.URL + "/menu/2021-05-03")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("read without key: status %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/refresh", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh without key: status %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/refresh", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("refresh with key: status %d", resp.StatusCode)
	}
}

func TestCORSMiddleware(t *testing.T) {
	h := corsMiddleware("https://a.example, https://b.example", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/menu", nil)
	req.Header.Set("Origin", "https://b.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://b.example" {
		t.Errorf("preflight: %d %q", rec.Code, rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/menu", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("foreign origin: %d %q", rec.Code, rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status %d", rec.Code)
	}
}

func TestParseRange(t *testing.T) {
	from, to, err := parseRange("2021-05-03", "")
	if err != nil || !from.Equal(monday) || !to.Equal(monday) {
		t.Errorf("single day: %s %s %v", from, to, err)
	}
	if _, _, err := parseRange("", "2021-05-03"); err == nil {
		t.Error("missing from: want error")
	}
	if _, _, err := parseRange("2021-05-03", "May 7"); err == nil {
		t.Error("bad to: want error")
	}
}

func TestNewScheduler(t *testing.T) {
	fe := &fakeEngine{}
	c, err := newScheduler(context.Background(), fe, "off")
	if err != nil || c != nil {
		t.Errorf("off: %v %v", c, err)
	}
	if _, err := newScheduler(context.Background(), fe, "every tuesday"); err == nil {
		t.Error("bad schedule: want error")
	}
	c, err = newScheduler(context.Background(), fe, "@hourly")
	if err != nil || c == nil || len(c.Entries()) != 1 {
		t.Errorf("@hourly: %v", err)
	}
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("KOMIDA_DB_PATH", filepath.Join(t.TempDir(), "x.db"))
	t.Setenv("KOMIDA_STALENESS_DAYS", "9")
	t.Setenv("KOMIDA_LOCALE", "en")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StalenessDays != 9 || cfg.Locale != "en" || !strings.HasSuffix(cfg.DBPath, "x.db") {
		t.Errorf("env overrides: %+v", cfg)
	}

	t.Setenv("KOMIDA_STALENESS_DAYS", "soon")
	if _, err := loadConfig(""); err == nil {
		t.Error("bad staleness: want error")
	}
}
