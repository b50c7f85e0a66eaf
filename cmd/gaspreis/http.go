package main

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rubiojr/gaspreis/pkg/api"
	"github.com/urfave/cli/v2"
)

// loggingTransport traces outbound requests. API keys are redacted.
type loggingTransport struct {
	proxied http.RoundTripper
	log     *slog.Logger
}

func (t loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.log.Debug("HTTP request", "method", req.Method, "url", redactURL(req.URL))

	res, err := t.proxied.RoundTrip(req)
	if err != nil {
		t.log.Debug("HTTP request failed", "url", redactURL(req.URL), "error", err)
		return res, err
	}

	t.log.Debug("HTTP response", "status", res.StatusCode, "duration", time.Since(start))
	return res, nil
}

func redactURL(u *url.URL) string {
	r := *u
	q := r.Query()
	if q.Has("apikey") {
		q.Set("apikey", "REDACTED")
		r.RawQuery = q.Encode()
	}
	return r.String()
}

func newHTTPClient(logger *slog.Logger) *http.Client {
	return &http.Client{
		Transport: loggingTransport{proxied: http.DefaultTransport, log: logger},
		Timeout:   api.DefaultTimeout,
	}
}

func newLogger(c *cli.Context) *slog.Logger {
	if !c.Bool("verbose") {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
