package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/nhle/linkfeed/internal/model"
)

// maxPageBody caps how much of a page is parsed.
const maxPageBody = 2 << 20

// page is a fetched HTML document and the URL it was finally served from.
type page struct {
	doc      *goquery.Document
	finalURL *url.URL
}

// Scraper fetches pages and reads their metadata tags.
type Scraper struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewScraper creates a scraper with its own HTTP client.
func NewScraper(opts Options, logger *zap.Logger) *Scraper {
	opts = opts.withDefaults()
	return newScraper(opts, newHTTPClient(opts), logger)
}

func newScraper(opts Options, client *http.Client, logger *zap.Logger) *Scraper {
	return &Scraper{client: client, userAgent: opts.UserAgent, logger: logger}
}

// Scrape fetches rawURL and hands the document to the platform's
// extractor. Instagram never fetches: its pages sit behind a login wall,
// so a fixed placeholder is returned. A non-HTML response yields a preview
// carrying only the site name.
func (s *Scraper) Scrape(ctx context.Context, rawURL string, platform model.Platform) Result {
	if platform == model.PlatformInstagram {
		return found(instagramPlaceholder())
	}

	pg, isHTML, err := s.fetch(ctx, rawURL)
	if err != nil {
		s.logger.Warn("fetching page for preview", zap.String("url", rawURL), zap.Error(err))
		return failed(err)
	}
	if !isHTML {
		return found(&model.LinkPreview{
			SiteName: bareHost(Hostname(rawURL)),
			Platform: model.PlatformOther,
		})
	}

	var lp *model.LinkPreview
	switch platform {
	case model.PlatformTwitter:
		lp = extractTwitter(pg, rawURL)
	case model.PlatformReddit:
		lp = extractReddit(pg)
	default:
		lp = extractArticle(pg)
	}

	lp.Clamp()
	return found(lp)
}

// FetchImage fetches rawURL solely for its og:image, falling back to
// twitter:image. It returns "" when the page or tag is unavailable.
func (s *Scraper) FetchImage(ctx context.Context, rawURL string) string {
	pg, isHTML, err := s.fetch(ctx, rawURL)
	if err != nil || !isHTML {
		if err != nil {
			s.logger.Debug("fetching page for image", zap.String("url", rawURL), zap.Error(err))
		}
		return ""
	}

	if img := metaProperty(pg.doc, "og:image"); img != "" {
		return AbsoluteURL(img, pg.finalURL)
	}
	if img := metaName(pg.doc, "twitter:image"); img != "" {
		return AbsoluteURL(img, pg.finalURL)
	}
	return ""
}

// fetch issues a browser-like GET following redirects. It reports
// isHTML=false, with no document, for other content types.
func (s *Scraper) fetch(ctx context.Context, rawURL string) (*page, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, &statusError{URL: rawURL, Code: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, false, nil
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBody), contentType)
	if err != nil {
		return nil, false, fmt.Errorf("detecting charset: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, false, fmt.Errorf("parsing html: %w", err)
	}

	finalURL := resp.Request.URL
	if finalURL == nil {
		finalURL, _ = url.Parse(rawURL)
	}

	return &page{doc: doc, finalURL: finalURL}, true, nil
}
