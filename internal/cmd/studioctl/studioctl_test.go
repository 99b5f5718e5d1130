package studioctl

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/louisbranch/portfolio.studio/internal/preload"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "studioctl.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func siteServer(t *testing.T) *httptest.Server {
	t.Helper()
	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><img src="/static/img/hero.png"><img src="/media/doc.png"></body></html>`))
	})
	mux.HandleFunc("GET /api/portfolio-graphics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"clients":[{"id":"c1","name":"Acme","image_url":"/media/acme.png"}]}`))
	})
	servePNG := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img.Bytes())
	}
	mux.HandleFunc("GET /static/img/", servePNG)
	mux.HandleFunc("GET /media/", servePNG)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPreloadPrintsProgress(t *testing.T) {
	t.Parallel()

	srv := siteServer(t)
	out, err := execute(t, "preload", "--config", writeConfig(t, "log_level: error\n"), "--site", srv.URL)
	if err != nil {
		t.Fatalf("preload error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "100%") {
		t.Fatalf("missing final frame:\n%s", out)
	}
	// hero, logo, portrait + two document images + one listing image.
	if !strings.Contains(out, "loaded 6/6 assets") {
		t.Fatalf("missing summary:\n%s", out)
	}
}

func TestPreloadThroughCache(t *testing.T) {
	t.Parallel()

	srv := siteServer(t)
	cacheDB := filepath.Join(t.TempDir(), "cache.db")
	cfg := writeConfig(t, "log_level: error\ncache_db: "+cacheDB+"\n")
	if out, err := execute(t, "preload", "--config", cfg, "--site", srv.URL, "--cache-version", "v7"); err != nil {
		t.Fatalf("preload error = %v\n%s", err, out)
	}
	out, err := execute(t, "cache", "generations", "--config", cfg)
	if err != nil {
		t.Fatalf("generations error = %v", err)
	}
	if strings.TrimSpace(out) != "studio-assets-v7" {
		t.Fatalf("generations = %q", out)
	}
}

func TestPreloadRequiresSite(t *testing.T) {
	t.Parallel()

	if _, err := execute(t, "preload", "--config", writeConfig(t, "log_level: error\n")); err == nil {
		t.Fatal("expected missing site error")
	}
}

func TestCacheActivatePurgesStaleGenerations(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, "log_level: error\n")
	cacheDB := filepath.Join(t.TempDir(), "cache.db")
	if _, err := execute(t, "cache", "activate", "--config", cfg, "--cache-db", cacheDB, "--version", "v1"); err != nil {
		t.Fatalf("activate v1: %v", err)
	}
	out, err := execute(t, "cache", "activate", "--config", cfg, "--cache-db", cacheDB, "--version", "v2")
	if err != nil {
		t.Fatalf("activate v2: %v", err)
	}
	if !strings.Contains(out, "active studio-assets-v2") || !strings.Contains(out, "purged studio-assets-v1") {
		t.Fatalf("activate output:\n%s", out)
	}
	out, err = execute(t, "cache", "generations", "--config", cfg, "--cache-db", cacheDB)
	if err != nil {
		t.Fatalf("generations: %v", err)
	}
	if strings.TrimSpace(out) != "studio-assets-v2" {
		t.Fatalf("generations = %q", out)
	}
}

func TestCacheReadsEnv(t *testing.T) {
	cacheDB := filepath.Join(t.TempDir(), "cache.db")
	t.Setenv("STUDIOCTL_CACHE_DB", cacheDB)
	cfg := writeConfig(t, "log_level: error\n")
	if _, err := execute(t, "cache", "activate", "--config", cfg, "--version", "env"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := os.Stat(cacheDB); err != nil {
		t.Fatalf("cache db not created at env path: %v", err)
	}
}

func TestCacheRequiresDatabase(t *testing.T) {
	t.Parallel()

	if _, err := execute(t, "cache", "generations", "--config", writeConfig(t, "log_level: error\n")); err == nil {
		t.Fatal("expected missing cache db error")
	}
}

func TestModelFollowsSession(t *testing.T) {
	t.Parallel()

	canceled := false
	var m tea.Model = newModel("http://studio.test", func() { canceled = true })

	m, _ = m.Update(frameMsg(preload.Progress{Percent: 40, Loaded: 2, Total: 5, Label: "Loading projects", Phase: preload.PhaseLoading}))
	view := m.View()
	if !strings.Contains(view, "Loading projects") || !strings.Contains(view, "2/5") {
		t.Fatalf("view = %q", view)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !canceled {
		t.Fatal("q did not cancel the session")
	}

	m, cmd := m.Update(dismissMsg{})
	if cmd == nil {
		t.Fatal("dismiss returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("dismiss did not quit")
	}
	if !m.(model).done {
		t.Fatal("model not marked done")
	}
}

func TestLinePresenterThrottles(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := newLinePresenter(&out)
	for _, pct := range []int{1, 2, 3, 11, 12, 100} {
		p.Render(preload.Progress{Percent: pct, Label: "x"})
	}
	if got := strings.Count(out.String(), "\n"); got != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", got, out.String())
	}
	if p.Last().Percent != 100 {
		t.Fatalf("last = %+v", p.Last())
	}
}
