// internal/daemon/daemon_test.go
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
	"github.com/colebrumley/radmon/internal/handler"
	"github.com/colebrumley/radmon/internal/logging"
)

const testConfig = `
daemon:
  listen_port: %d
logging:
  format: text
history:
  enabled: true
  path: %s
sources:
  - name: battery
    type: webhook
  - name: bench
    type: manual
triggers:
  - name: data-updated
    type: data_updated
    handlers:
      - name: history
        type: history
      - name: metrics
        type: metrics
  - name: battery-low
    type: battery_low
    handlers:
      - name: shutdown
        type: command
        command: sh
        args: ["-c", "echo {{value}} >> %s"]
`

type testEnv struct {
	d        *Daemon
	dir      string
	hookFile string
	server   *httptest.Server
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{dir: dir, hookFile: filepath.Join(dir, "hook.out")}

	cfgPath := filepath.Join(dir, "config.yaml")
	writeConfig(t, cfgPath, fmt.Sprintf(testConfig, 0, filepath.Join(dir, "history.db"), env.hookFile))

	env.d = New(cfgPath, Options{LogFile: filepath.Join(dir, "radmond.log")})
	if err := env.d.prepare(); err != nil {
		t.Fatalf("prepare() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.d.dispatchLoop(ctx)
		close(done)
	}()

	env.server = httptest.NewServer(env.d.Router())
	t.Cleanup(func() {
		env.server.Close()
		cancel()
		<-done
		env.d.shutdown()
	})
	return env
}

func (env *testEnv) ingest(t *testing.T, source, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest("POST", env.server.URL+"/api/ingest/"+source, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp
}

func batteryPayload(v float64) string {
	return fmt.Sprintf(`{"channels":{"Battery Voltage":{"value":%v,"unit":"V"}}}`, v)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
}

func TestDaemon_IngestRecordsHistory(t *testing.T) {
	env := newTestEnv(t)

	resp := env.ingest(t, "battery", batteryPayload(12.6), nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var readings []struct {
		Origin  string  `json:"origin"`
		Channel string  `json:"channel"`
		Value   float64 `json:"value"`
	}
	waitFor(t, "recorded reading", func() bool {
		getJSON(t, env.server.URL+"/api/readings?origin=battery", &readings)
		return len(readings) == 1
	})
	if readings[0].Channel != config.BatteryVoltageChannel || readings[0].Value != 12.6 {
		t.Errorf("unexpected reading %+v", readings[0])
	}
}

func TestDaemon_BatteryLowRunsCommand(t *testing.T) {
	env := newTestEnv(t)

	for _, v := range []float64{12.6, 12.2, 11.8} {
		if resp := env.ingest(t, "battery", batteryPayload(v), nil); resp.StatusCode != http.StatusAccepted {
			t.Fatalf("ingest %v: status %d", v, resp.StatusCode)
		}
	}

	waitFor(t, "shutdown hook", func() bool {
		data, _ := os.ReadFile(env.hookFile)
		return strings.TrimSpace(string(data)) == "11.8"
	})
}

func TestDaemon_IngestErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		source string
		body   string
		want   int
	}{
		{"unknown source", "nope", batteryPayload(12), http.StatusNotFound},
		{"manual source", "bench", batteryPayload(12), http.StatusNotFound},
		{"bad json", "battery", "{", http.StatusBadRequest},
		{"no channels", "battery", `{"channels":{}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := env.ingest(t, tt.source, tt.body, nil); resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestDaemon_HealthAndTriggers(t *testing.T) {
	env := newTestEnv(t)

	var health map[string]any
	getJSON(t, env.server.URL+"/health", &health)
	if health["status"] != "ok" || health["triggers"] != float64(2) || health["history"] != true {
		t.Errorf("unexpected health %v", health)
	}

	var triggers []struct {
		Name     string `json:"name"`
		State    string `json:"state"`
		Handlers []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"handlers"`
	}
	getJSON(t, env.server.URL+"/api/triggers", &triggers)
	if len(triggers) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(triggers))
	}
	if triggers[0].Name != "data-updated" || triggers[0].State != "running" || len(triggers[0].Handlers) != 2 {
		t.Errorf("unexpected trigger %+v", triggers[0])
	}
	if triggers[1].Handlers[0].Name != "shutdown" {
		t.Errorf("unexpected handlers %+v", triggers[1].Handlers)
	}
}

func TestDaemon_Metrics(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, "battery", batteryPayload(12.4), nil)

	waitFor(t, "dispatch metrics", func() bool {
		resp, err := http.Get(env.server.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return bytes.Contains(body, []byte(`radmon_dispatch_total{result="ok"} 1`)) &&
			bytes.Contains(body, []byte(`radmon_channel_value{channel="Battery Voltage",origin="battery",unit="V"} 12.4`))
	})
}

func TestDaemon_Reload(t *testing.T) {
	env := newTestEnv(t)
	old := env.d.registry

	writeConfig(t, env.d.configPath, fmt.Sprintf(`
history:
  enabled: true
  path: %s
sources:
  - name: battery
    type: webhook
  - name: bench
    type: manual
triggers:
  - name: log-everything
    type: data_updated
    handlers:
      - name: log
        type: log
`, filepath.Join(env.dir, "history.db")))

	if err := env.d.reload(); err != nil {
		t.Fatalf("reload() error = %v", err)
	}

	names := []string{}
	for _, tr := range env.d.registry.Triggers() {
		names = append(names, tr.Name())
	}
	if strings.Join(names, ",") != "log-everything" {
		t.Errorf("expected reloaded triggers, got %v", names)
	}
	for _, tr := range old.Triggers() {
		if tr.State() != event.StateTerminated {
			t.Errorf("old trigger %s left in state %s", tr.Name(), tr.State())
		}
	}

	if resp := env.ingest(t, "battery", batteryPayload(12), nil); resp.StatusCode != http.StatusAccepted {
		t.Errorf("ingest after reload: status %d", resp.StatusCode)
	}
}

func TestDaemon_ReloadRejectsInvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	old := env.d.registry

	writeConfig(t, env.d.configPath, "triggers:\n  - name: broken\n    type: nonsense\n")
	if err := env.d.reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if env.d.registry != old {
		t.Error("registry replaced by invalid config")
	}
}

func TestDaemon_RunStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeConfig(t, cfgPath, fmt.Sprintf(testConfig, port, filepath.Join(dir, "history.db"), filepath.Join(dir, "hook.out")))

	d := New(cfgPath, Options{LogFile: filepath.Join(dir, "radmond.log")})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	waitFor(t, "HTTP server", func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStatusOnce(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeConfig(t, cfgPath, `
sources:
  - name: battery
    type: command
    command: sh
    args: ["-c", "echo 12.7"]
  - name: remote
    type: webhook
`)

	d := New(cfgPath, Options{LogFile: filepath.Join(dir, "radmond.log")})
	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.StatusOnce(ctx, &buf); err != nil {
		t.Fatalf("StatusOnce() error = %v", err)
	}

	var got struct {
		Origin   string                 `json:"origin"`
		Channels map[string]event.Value `json:"channels"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if got.Origin != "battery" || got.Channels[config.BatteryVoltageChannel].Value != 12.7 {
		t.Errorf("unexpected status %+v", got)
	}
}

func TestBuildRegistry_SkipsHistoryWithoutDB(t *testing.T) {
	cfg, err := config.Parse([]byte(`
triggers:
  - name: data-updated
    type: data_updated
    handlers:
      - name: history
        type: history
      - name: log
        type: log
`))
	if err != nil {
		t.Fatal(err)
	}

	reg, err := BuildRegistry(cfg, handler.Deps{}, logging.Discard())
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}
	triggers := reg.Triggers()
	if len(triggers) != 1 || len(triggers[0].Children()) != 1 || triggers[0].Children()[0].Name() != "log" {
		t.Errorf("expected only the log handler, got %v", triggers[0].Children())
	}
}

func TestDaemon_RunFailsWhenPortInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeConfig(t, cfgPath, fmt.Sprintf(testConfig, port, filepath.Join(dir, "history.db"), filepath.Join(dir, "hook.out")))

	d := New(cfgPath, Options{LogFile: filepath.Join(dir, "radmond.log")})
	errc := make(chan error, 1)
	go func() { errc <- d.Run(context.Background()) }()

	select {
	case err := <-errc:
		if err == nil || !strings.Contains(err.Error(), "listening on") {
			t.Errorf("expected listen error, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run kept going without its HTTP server")
	}
}

func TestDaemon_ReloadAfterShutdown(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeConfig(t, cfgPath, fmt.Sprintf(testConfig, 0, filepath.Join(dir, "history.db"), filepath.Join(dir, "hook.out")))

	d := New(cfgPath, Options{LogFile: filepath.Join(dir, "radmond.log")})
	if err := d.prepare(); err != nil {
		t.Fatalf("prepare() error = %v", err)
	}
	old := d.registry
	if err := d.shutdown(); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}

	if err := d.reload(); !errors.Is(err, errDaemonClosed) {
		t.Fatalf("expected errDaemonClosed, got %v", err)
	}
	if d.registry != old {
		t.Error("registry swapped in after shutdown")
	}
}

func TestDaemon_PrepareFailureReleasesResources(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeConfig(t, cfgPath, fmt.Sprintf(`
history:
  enabled: true
  path: %s
triggers:
  - name: upload
    type: data_updated
    handlers:
      - name: safecast
        type: safecast
        api_key_env: RADMON_TEST_UNSET_SAFECAST_KEY
`, filepath.Join(dir, "history.db")))

	d := New(cfgPath, Options{LogFile: filepath.Join(dir, "radmond.log")})
	if err := d.prepare(); err == nil {
		t.Fatal("expected prepare error for missing api key")
	}
	if d.history != nil {
		t.Error("history database left open")
	}
	if d.cleanup != nil {
		t.Error("history cleanup left scheduled")
	}
	if d.logCloser != nil {
		t.Error("log file left open")
	}
}
