package preview

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nhle/linkfeed/internal/model"
)

// DefaultTimeout bounds each outbound request.
const DefaultTimeout = 15 * time.Second

// maxRedirects caps redirect chains followed while scraping.
const maxRedirects = 10

// Options configures outbound preview requests.
type Options struct {
	Timeout        time.Duration
	UserAgent      string
	InstagramToken string

	// Endpoints overrides oEmbed endpoint templates per platform.
	Endpoints map[model.Platform]string

	// Transport replaces http.DefaultTransport when set.
	Transport http.RoundTripper
}

// OptionsFrom converts preview settings into Options.
func OptionsFrom(cfg model.PreviewConfig) Options {
	opts := Options{
		Timeout:        cfg.Timeout(),
		UserAgent:      cfg.UserAgent,
		InstagramToken: cfg.InstagramAccessToken,
	}
	if len(cfg.Endpoints) > 0 {
		opts.Endpoints = make(map[model.Platform]string, len(cfg.Endpoints))
		for name, tmpl := range cfg.Endpoints {
			opts.Endpoints[model.Platform(name)] = tmpl
		}
	}
	return opts
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = model.DefaultUserAgent
	}
	return o
}

// newHTTPClient builds the client shared by the oEmbed resolver and scraper.
func newHTTPClient(o Options) *http.Client {
	return &http.Client{
		Timeout:   o.Timeout,
		Transport: o.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// statusError reports a non-2xx response.
type statusError struct {
	URL  string
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}
