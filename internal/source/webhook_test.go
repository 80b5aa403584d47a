package source

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
)

func TestWebhook_HandleRequest(t *testing.T) {
	w, err := NewWebhook(config.Source{Name: "battery", Type: "webhook"})
	if err != nil {
		t.Fatal(err)
	}

	body := `{"channels":{"Battery Voltage":{"value":12.3,"unit":"V"}},"timestamp":"2026-03-11T05:46:00+09:00"}`
	r := httptest.NewRequest("POST", "/api/ingest/battery", strings.NewReader(body))
	out := make(chan *event.Datum, 1)

	d, err := w.HandleRequest(r, out)
	if err != nil {
		t.Fatalf("HandleRequest() error = %v", err)
	}
	if got := <-out; got != d {
		t.Error("returned datum was not queued")
	}
	if v, _ := d.Channel("Battery Voltage"); v.Value != 12.3 || v.Unit != "V" {
		t.Errorf("unexpected reading %+v", v)
	}
	want := time.Date(2026, 3, 10, 20, 46, 0, 0, time.UTC)
	if !d.Timestamp().Equal(want) || d.Timestamp().Location() != time.UTC {
		t.Errorf("expected %v, got %v", want, d.Timestamp())
	}
}

func TestWebhook_Secret(t *testing.T) {
	t.Setenv("RADMON_TEST_SECRET", "s3cret")
	w, err := NewWebhook(config.Source{Name: "battery", Type: "webhook", SecretEnv: "RADMON_TEST_SECRET"})
	if err != nil {
		t.Fatal(err)
	}
	body := `{"channels":{"Battery Voltage":{"value":12.3,"unit":"V"}}}`
	out := make(chan *event.Datum, 1)

	r := httptest.NewRequest("POST", "/", strings.NewReader(body))
	if _, err := w.HandleRequest(r, out); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden without secret, got %v", err)
	}

	r = httptest.NewRequest("POST", "/", strings.NewReader(body))
	r.Header.Set("X-Radmon-Secret", "s3cret")
	if _, err := w.HandleRequest(r, out); err != nil {
		t.Errorf("expected success with secret, got %v", err)
	}
}

func TestWebhook_MissingSecretEnv(t *testing.T) {
	if _, err := NewWebhook(config.Source{Name: "b", Type: "webhook", SecretEnv: "RADMON_UNSET_SECRET_VAR"}); err == nil {
		t.Error("expected error for empty secret env")
	}
}

func TestWebhook_BadPayloads(t *testing.T) {
	w, _ := NewWebhook(config.Source{Name: "battery", Type: "webhook"})
	for _, body := range []string{`not json`, `{"channels":{}}`, `{}`} {
		r := httptest.NewRequest("POST", "/", strings.NewReader(body))
		if _, err := w.HandleRequest(r, make(chan *event.Datum, 1)); !errors.Is(err, ErrBadPayload) {
			t.Errorf("body %q: expected ErrBadPayload, got %v", body, err)
		}
	}
}

func TestWebhook_Busy(t *testing.T) {
	w, _ := NewWebhook(config.Source{Name: "battery", Type: "webhook"})
	out := make(chan *event.Datum) // unbuffered, nobody reading
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"channels":{"x":{"value":1}}}`))
	if _, err := w.HandleRequest(r, out); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}
