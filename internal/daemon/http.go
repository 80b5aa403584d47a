// internal/daemon/http.go
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/colebrumley/radmon/internal/event"
	"github.com/colebrumley/radmon/internal/source"
	"github.com/colebrumley/radmon/internal/state"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router returns the HTTP API
func (d *Daemon) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/health", rateLimitHandler(60, d.handleHealth))
	r.Get("/metrics", promhttp.HandlerFor(d.promReg, promhttp.HandlerOpts{}).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/triggers", rateLimitHandler(30, d.handleAPITriggers))
		r.Get("/readings", rateLimitHandler(30, d.handleAPIReadings))
		r.Post("/ingest/{source}", rateLimitHandler(60, d.handleIngest))
	})
	return r
}

// startHTTPServer serves the API until ctx is done. A failure to listen or
// serve is returned so Run stops.
func (d *Daemon) startHTTPServer(ctx context.Context) error {
	d.mu.RLock()
	addr := fmt.Sprintf("%s:%d", d.config.Daemon.ListenAddress, d.config.Daemon.ListenPort)
	d.mu.RUnlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	d.httpServer = &http.Server{
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.logger.Info("starting HTTP server", "address", ln.Addr().String())

	errc := make(chan error, 1)
	go func() {
		errc <- d.httpServer.Serve(ln)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serving HTTP: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.httpServer.Shutdown(shutdownCtx)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	d.mu.RLock()
	triggers := len(d.registry.Triggers())
	d.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime":   time.Since(d.startTime).Truncate(time.Second).String(),
		"sources":  len(d.sources),
		"triggers": triggers,
		"history":  d.history != nil,
	})
}

type nodeStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type triggerStatus struct {
	nodeStatus
	Handlers []nodeStatus `json:"handlers"`
}

// stateful is the part of a node that reports its lifecycle
type stateful interface {
	Name() string
	State() event.State
	Err() error
}

func statusOf(n stateful) nodeStatus {
	s := nodeStatus{Name: n.Name(), State: n.State().String()}
	if err := n.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}

// handleAPITriggers reports the state of every trigger and handler, so a
// crashed handler is visible without reading the logs.
func (d *Daemon) handleAPITriggers(w http.ResponseWriter, r *http.Request) {
	d.mu.RLock()
	triggers := d.registry.Triggers()
	d.mu.RUnlock()

	out := make([]triggerStatus, 0, len(triggers))
	for _, t := range triggers {
		ts := triggerStatus{nodeStatus: statusOf(t), Handlers: []nodeStatus{}}
		for _, c := range t.Children() {
			if sc, ok := c.(stateful); ok {
				ts.Handlers = append(ts.Handlers, statusOf(sc))
			}
		}
		out = append(out, ts)
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *Daemon) handleAPIReadings(w http.ResponseWriter, r *http.Request) {
	if d.history == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	q := state.Query{
		Origin:  r.URL.Query().Get("origin"),
		Channel: r.URL.Query().Get("channel"),
		Limit:   50,
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = min(n, 500)
	}
	if s := r.URL.Query().Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: expected RFC3339")
			return
		}
		q.Since = since
	}

	readings, err := d.history.GetReadings(q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("querying readings: %v", err))
		return
	}
	if readings == nil {
		readings = []state.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (d *Daemon) handleIngest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	wh, ok := d.webhooks[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}

	datum, err := wh.HandleRequest(r, d.events)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"origin":   datum.Origin(),
			"channels": datum.ChannelNames(),
		})
	case errors.Is(err, source.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, source.ErrBadPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, source.ErrBusy):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// rateLimitHandler wraps an HTTP handler with a simple token-bucket rate limiter
func rateLimitHandler(requestsPerMinute int, handler http.HandlerFunc) http.HandlerFunc {
	var mu sync.Mutex
	tokens := requestsPerMinute
	lastRefill := time.Now()

	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		now := time.Now()
		elapsed := now.Sub(lastRefill)
		refill := int(elapsed.Minutes() * float64(requestsPerMinute))
		if refill > 0 {
			tokens += refill
			if tokens > requestsPerMinute {
				tokens = requestsPerMinute
			}
			lastRefill = now
		}

		if tokens <= 0 {
			mu.Unlock()
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		tokens--
		mu.Unlock()

		handler(w, r)
	}
}
