// internal/source/webhook.go
package source

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/colebrumley/radmon/internal/config"
	"github.com/colebrumley/radmon/internal/event"
)

var (
	ErrForbidden  = errors.New("invalid or missing secret")
	ErrBadPayload = errors.New("invalid payload")
	ErrBusy       = errors.New("dispatch queue is full")
)

const maxPayloadBytes = 64 << 10

// Payload is the JSON body accepted by the ingest endpoint
type Payload struct {
	Channels  map[string]event.Value `json:"channels"`
	Timestamp *time.Time             `json:"timestamp,omitempty"`
}

// Webhook accepts readings posted over HTTP
type Webhook struct {
	name         string
	secretHeader string
	secret       string
}

// NewWebhook creates a new webhook source
func NewWebhook(cfg config.Source) (*Webhook, error) {
	w := &Webhook{name: cfg.Name, secretHeader: cfg.SecretHeader}
	if w.secretHeader == "" && cfg.SecretEnv != "" {
		w.secretHeader = "X-Radmon-Secret"
	}
	if cfg.SecretEnv != "" {
		w.secret = os.Getenv(cfg.SecretEnv)
		if w.secret == "" {
			return nil, fmt.Errorf("source %s: secret env %s is empty", cfg.Name, cfg.SecretEnv)
		}
	}
	return w, nil
}

func (w *Webhook) Name() string {
	return w.name
}

// Start for webhook just blocks until context is cancelled
// The actual HTTP handling is done by the shared server
func (w *Webhook) Start(ctx context.Context, out chan<- *event.Datum) error {
	<-ctx.Done()
	return ctx.Err()
}

func (w *Webhook) Stop() error {
	return nil
}

// HandleRequest validates a posted reading and queues it on out without blocking
func (w *Webhook) HandleRequest(r *http.Request, out chan<- *event.Datum) (*event.Datum, error) {
	if w.secret != "" {
		got := r.Header.Get(w.secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(w.secret)) != 1 {
			return nil, ErrForbidden
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if len(p.Channels) == 0 {
		return nil, fmt.Errorf("%w: no channels", ErrBadPayload)
	}

	ts := time.Now().UTC()
	if p.Timestamp != nil {
		ts = p.Timestamp.UTC()
	}
	d := event.NewDatum(w.name, p.Channels, ts)

	select {
	case out <- d:
		return d, nil
	default:
		return nil, ErrBusy
	}
}
