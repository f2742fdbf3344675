package preview

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// rewriteTransport sends every request to one test server while keeping
// the original Host header, so handlers can route by host.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if out.Host == "" {
		out.Host = req.URL.Host
	}
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host

	resp, err := http.DefaultTransport.RoundTrip(out)
	if resp != nil {
		resp.Request = req
	}
	return resp, err
}

// hosts routes test requests by Host header.
type hosts map[string]http.HandlerFunc

func (h hosts) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := strings.ToLower(r.Host)
	if fn, ok := h[host]; ok {
		fn(w, r)
		return
	}
	http.NotFound(w, r)
}

// newTestOptions starts a server for h and returns Options routed to it.
func newTestOptions(t *testing.T, h hosts) Options {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing test server url: %v", err)
	}

	return Options{
		Timeout:   2 * time.Second,
		Transport: rewriteTransport{target: target},
	}
}

func newTestResolver(t *testing.T, h hosts) *Resolver {
	t.Helper()
	return NewResolver(newTestOptions(t, h), zaptest.NewLogger(t))
}

func serveHTML(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}
}

func serveJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func serveStatus(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}

func unreachable(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s%s", r.Host, r.URL.Path)
		w.WriteHeader(http.StatusTeapot)
	}
}
