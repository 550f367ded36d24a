// Package proxy relays remote thumbnail images so the browser can load them
// from the dashboard's own origin.
package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Options tune the proxy. Zero values fall back to the defaults below.
type Options struct {
	Timeout  time.Duration
	Rate     float64
	Burst    int
	MaxBytes int64
}

const (
	defaultTimeout  = 10 * time.Second
	defaultRate     = 20
	defaultBurst    = 40
	defaultMaxBytes = 10 << 20
)

// Handler serves GET /proxy?url=<absolute http(s) url>.
type Handler struct {
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	maxBytes int64
	log      *slog.Logger
}

func New(client *http.Client, opt Options, log *slog.Logger) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	if opt.Timeout <= 0 {
		opt.Timeout = defaultTimeout
	}
	if opt.Rate <= 0 {
		opt.Rate = defaultRate
	}
	if opt.Burst <= 0 {
		opt.Burst = defaultBurst
	}
	if opt.MaxBytes <= 0 {
		opt.MaxBytes = defaultMaxBytes
	}
	return &Handler{
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(opt.Rate), opt.Burst),
		timeout:  opt.Timeout,
		maxBytes: opt.MaxBytes,
		log:      log,
	}
}

func target(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("url parameter required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New("url must be absolute http or https")
	}
	return u, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	u, err := target(r.URL.Query().Get("url"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.limiter.Wait(ctx); err != nil {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		h.log.WarnContext(ctx, "proxy fetch failed", "url", u.String(), "error", err)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.log.InfoContext(ctx, "proxy upstream status", "url", u.String(), "status", resp.StatusCode)
		http.Error(w, http.StatusText(resp.StatusCode), resp.StatusCode)
		return
	}
	if resp.ContentLength > h.maxBytes {
		http.Error(w, "upstream body too large", http.StatusBadGateway)
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	n, err := io.Copy(w, io.LimitReader(resp.Body, h.maxBytes))
	if err != nil {
		h.log.WarnContext(ctx, "proxy copy interrupted", "url", u.String(), "bytes", n, "error", err)
	}
}
