package internal

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/setlist/internal/cachestore"
	"github.com/starford/setlist/internal/localstore"
	"github.com/starford/setlist/internal/prefs"
	"github.com/starford/setlist/internal/testutil"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Library.Path = filepath.Join(dir, "songs")
	cfg.SQLite.Path = filepath.Join(dir, "docs.db")
	cfg.Client.LocalPath = filepath.Join(dir, "local.db")
	return cfg
}

func TestNewRouter_Health(t *testing.T) {
	docs := testutil.TestDocs(t)
	r := newRouter(docs, chi.NewRouter(), "")

	for _, p := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", p, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"status":"ok"`) {
			t.Errorf("%s: body = %s", p, w.Body.String())
		}
	}
}

func TestNewRouter_ReadyFailsWhenStoreClosed(t *testing.T) {
	docs := testutil.TestDocs(t)
	r := newRouter(docs, chi.NewRouter(), "")
	_ = docs.Close()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestNewRouter_StaticShell(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "offline.html"), []byte("<p>offline</p>"), 0o644); err != nil {
		t.Fatal(err)
	}
	docs := testutil.TestDocs(t)
	r := newRouter(docs, chi.NewRouter(), dir)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/offline.html", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "offline") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRunSync(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		t.Fatal(err)
	}
	song := "---\ntitle: Be Thou My Vision\nkey: D\n---\n[D]Be thou my [G]vision\n"
	if err := os.WriteFile(filepath.Join(cfg.Library.Path, "vision.md"), []byte(song), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := RunSync(context.Background(), &out, WithConfig(cfg)); err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if !strings.Contains(out.String(), "imported 1") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	if err := RunSync(context.Background(), &out, WithConfig(cfg)); err != nil {
		t.Fatalf("RunSync again: %v", err)
	}
	if !strings.Contains(out.String(), "imported 0, unchanged 1") {
		t.Errorf("second output = %q", out.String())
	}
}

func TestRunPedal(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	if err := RunPedal(ctx, &out, prefs.Pedal{NextPage: "pagedown", PrevPage: "pageup"}, WithConfig(cfg)); err != nil {
		t.Fatalf("RunPedal: %v", err)
	}
	if !strings.Contains(out.String(), "next page  pagedown") {
		t.Errorf("output = %q", out.String())
	}

	local, err := localstore.Open(cfg.Client.LocalPath)
	if err != nil {
		t.Fatal(err)
	}
	p, err := prefs.NewStore(local, nil).Load(ctx)
	local.Close()
	if err != nil {
		t.Fatal(err)
	}
	want := prefs.Pedal{PrevPage: "pageup", NextPage: "pagedown", PrevSong: "up", NextSong: "down"}
	if p.Pedal != want {
		t.Errorf("stored pedal = %+v, want %+v", p.Pedal, want)
	}

	out.Reset()
	if err := RunPedal(ctx, &out, prefs.Pedal{NextSong: "up"}, WithConfig(cfg)); err == nil {
		t.Error("binding a key twice should fail")
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("Run without config should fail")
	}
	if err := RunSync(context.Background(), &bytes.Buffer{}); err == nil {
		t.Fatal("RunSync without config should fail")
	}
}

func TestAgentDefaults_APIPassesThrough(t *testing.T) {
	var listCalls atomic.Int32
	done := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/collections/songs":
			n := listCalls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"records":[],"total":%d}`, n)
		case "/api/collections/songs/stream":
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "event: snapshot\ndata: {\"records\":[]}\n\n")
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-done:
			}
		default:
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<p>shell</p>")
		}
	}))
	t.Cleanup(upstream.Close)

	cfg := NewDefaultConfig().Agent
	cfg.Enabled = true
	cfg.Upstream = upstream.URL
	if err := cfg.Validate(); err != nil {
		t.Fatalf("agent config: %v", err)
	}

	cache, err := cachestore.Open("", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close() })
	agent, err := newAgent(cfg, cache, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := agent.Install(context.Background()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := agent.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	u, _ := url.Parse(upstream.URL)
	front := httptest.NewServer(agent.Handler(u))
	t.Cleanup(front.Close)
	t.Cleanup(func() { close(done) })

	for i := 1; i <= 2; i++ {
		resp, err := http.Get(front.URL + "/api/collections/songs")
		if err != nil {
			t.Fatalf("GET %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.Header.Get("X-Cache") != "" {
			t.Errorf("GET %d: X-Cache = %q, want none", i, resp.Header.Get("X-Cache"))
		}
	}
	if got := listCalls.Load(); got != 2 {
		t.Errorf("upstream list calls = %d, want 2", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, front.URL+"/api/collections/songs/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if line != "event: snapshot\n" {
		t.Errorf("first line = %q", line)
	}
}
