// internal/handler/upload.go
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
	"github.com/colebrumley/radmon/internal/security"
	"github.com/colebrumley/radmon/internal/template"
)

// SafeCastTimeLayout is the captured_at format the SafeCast API accepts
const SafeCastTimeLayout = "02 January 2006, 15:04:05"

// poster sends one request and treats any non-2xx status as a dropped
// delivery. Only transport failures are returned.
type poster struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func (p *poster) post(target, contentType string, body []byte, header http.Header) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", security.ScrubOutput(target), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.logger.Warn("upload rejected",
			"url", security.ScrubOutput(target),
			"status", resp.StatusCode,
			"body", security.ScrubOutput(strings.TrimSpace(string(msg))),
		)
		return nil
	}
	p.logger.Debug("uploaded", "url", security.ScrubOutput(target), "status", resp.StatusCode)
	return nil
}

func newPoster(cfg config.Handler, client *http.Client, logger *slog.Logger) poster {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return poster{client: client, timeout: timeout, logger: logger}
}

// SafeCast uploads one channel of each datum as a SafeCast measurement
// taken at a fixed location.
type SafeCast struct {
	poster
	endpoint string
	cfg      config.Handler
}

func NewSafeCast(cfg config.Handler, client *http.Client, logger *slog.Logger) (*SafeCast, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("handler %s: api key env %s is empty", cfg.Name, cfg.APIKeyEnv)
	}
	endpoint := strings.TrimRight(cfg.URL, "/") + "/measurements?api_key=" + url.QueryEscape(key)
	return &SafeCast{
		poster:   newPoster(cfg, client, logger),
		endpoint: endpoint,
		cfg:      cfg,
	}, nil
}

// Form builds the measurement form for d. It reports false if d lacks
// the configured channel.
func (s *SafeCast) Form(d *event.Datum) (url.Values, bool) {
	v, ok := d.Channel(s.cfg.Channel)
	if !ok {
		return nil, false
	}
	unit := v.Unit
	if unit == "" {
		unit = "cpm"
	}

	form := url.Values{}
	form.Set("utf8", "✓")
	form.Set("measurement[value]", strconv.FormatFloat(v.Value, 'f', -1, 64))
	form.Set("measurement[unit]", unit)
	form.Set("measurement[captured_at]", d.Timestamp().UTC().Format(SafeCastTimeLayout))
	form.Set("measurement[latitude]", strconv.FormatFloat(s.cfg.Latitude, 'f', -1, 64))
	form.Set("measurement[longitude]", strconv.FormatFloat(s.cfg.Longitude, 'f', -1, 64))
	form.Set("measurement[height]", s.cfg.Height)
	form.Set("measurement[surface]", s.cfg.Surface)
	form.Set("measurement[radiation]", s.cfg.Radiation)
	if s.cfg.DeviceID != "" {
		form.Set("measurement[device_id]", s.cfg.DeviceID)
	}
	return form, true
}

func (s *SafeCast) Handle(d *event.Datum) error {
	form, ok := s.Form(d)
	if !ok {
		s.logger.Debug("datum has no upload channel", "channel", s.cfg.Channel, "origin", d.Origin())
		return nil
	}
	return s.post(s.endpoint, "application/x-www-form-urlencoded", []byte(form.Encode()), nil)
}

// Feed posts every datum as JSON to a time-series feed
type Feed struct {
	poster
	url string
	key string
}

func NewFeed(cfg config.Handler, client *http.Client, logger *slog.Logger) *Feed {
	f := &Feed{poster: newPoster(cfg, client, logger), url: cfg.URL}
	if cfg.APIKeyEnv != "" {
		f.key = os.Getenv(cfg.APIKeyEnv)
	}
	return f
}

func (f *Feed) Handle(d *event.Datum) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding datum: %w", err)
	}
	header := http.Header{}
	if f.key != "" {
		header.Set("Authorization", "Bearer "+f.key)
	}
	return f.post(f.url, "application/json", body, header)
}

// Notify posts a templated message to a chat webhook
type Notify struct {
	poster
	url     string
	message string
	channel string
}

func NewNotify(cfg config.Handler, client *http.Client, logger *slog.Logger) *Notify {
	return &Notify{
		poster:  newPoster(cfg, client, logger),
		url:     cfg.URL,
		message: cfg.Message,
		channel: cfg.Channel,
	}
}

// Message renders the notification text for d
func (n *Notify) Message(d *event.Datum) string {
	return template.Expand(n.message, templateVars(d, n.channel))
}

func (n *Notify) Handle(d *event.Datum) error {
	body, err := json.Marshal(map[string]string{"text": n.Message(d)})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return n.post(n.url, "application/json", body, nil)
}
