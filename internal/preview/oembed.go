package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/nhle/linkfeed/internal/model"
)

// maxOEmbedBody caps how much of a provider response is decoded.
const maxOEmbedBody = 1 << 20

// DefaultEndpoints are the oEmbed endpoint templates per platform. The
// single %s receives the query-escaped content URL.
var DefaultEndpoints = map[model.Platform]string{
	model.PlatformTwitter:    "https://publish.twitter.com/oembed?url=%s",
	model.PlatformYouTube:    "https://noembed.com/embed?url=%s",
	model.PlatformVimeo:      "https://vimeo.com/api/oembed.json?url=%s",
	model.PlatformSpotify:    "https://embed.spotify.com/oembed?url=%s",
	model.PlatformSoundCloud: "https://soundcloud.com/oembed?url=%s&format=json",
	model.PlatformTikTok:     "https://www.tiktok.com/oembed?url=%s",
	model.PlatformInstagram:  "https://graph.facebook.com/v8.0/instagram_oembed?url=%s",
	model.PlatformReddit:     "https://noembed.com/embed?url=%s",
	model.PlatformGeneric:    "https://noembed.com/embed?url=%s",
}

// oembedResponse holds the oEmbed fields any provider may send.
type oembedResponse struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
	HTML         string `json:"html"`
	ProviderName string `json:"provider_name"`
	Error        string `json:"error"`
}

// provider binds a platform to its response mapping.
type provider struct {
	platform model.Platform

	// strict rejects responses without embed markup or with an error.
	strict bool

	// accept vets the content URL before any request is made.
	accept func(u *url.URL) bool

	build func(rawURL string, r oembedResponse) *model.LinkPreview
}

var providers = map[model.Platform]provider{
	model.PlatformTwitter: {
		platform: model.PlatformTwitter,
		build:    buildTwitter,
	},
	model.PlatformYouTube: {
		platform: model.PlatformYouTube,
		build:    embedBuilder(model.PlatformYouTube, "YouTube", false),
	},
	model.PlatformVimeo: {
		platform: model.PlatformVimeo,
		accept:   hasLastPathSegment,
		build:    embedBuilder(model.PlatformVimeo, "Vimeo", true),
	},
	model.PlatformSpotify: {
		platform: model.PlatformSpotify,
		build:    embedBuilder(model.PlatformSpotify, "Spotify", false),
	},
	model.PlatformSoundCloud: {
		platform: model.PlatformSoundCloud,
		build: func(rawURL string, r oembedResponse) *model.LinkPreview {
			p := embedBuilder(model.PlatformSoundCloud, "SoundCloud", false)(rawURL, r)
			p.ImageURL = ""
			return p
		},
	},
	model.PlatformTikTok: {
		platform: model.PlatformTikTok,
		build:    embedBuilder(model.PlatformTikTok, "TikTok", false),
	},
	model.PlatformInstagram: {
		platform: model.PlatformInstagram,
		build:    buildInstagram,
	},
	model.PlatformReddit: {
		platform: model.PlatformReddit,
		strict:   true,
		build:    embedBuilder(model.PlatformReddit, "Reddit", true),
	},
	model.PlatformGeneric: {
		platform: model.PlatformGeneric,
		strict:   true,
		build: func(_ string, r oembedResponse) *model.LinkPreview {
			return &model.LinkPreview{
				Title:       r.Title,
				Description: r.Description,
				Author:      r.AuthorName,
				ImageURL:    r.ThumbnailURL,
				EmbedHTML:   r.HTML,
				Embeddable:  true,
				Platform:    model.PlatformOther,
				SiteName:    r.ProviderName,
			}
		},
	},
}

// embedBuilder maps the common oEmbed fields for an embeddable provider.
func embedBuilder(p model.Platform, site string, withDescription bool) func(string, oembedResponse) *model.LinkPreview {
	return func(_ string, r oembedResponse) *model.LinkPreview {
		lp := &model.LinkPreview{
			Title:      r.Title,
			Author:     r.AuthorName,
			ImageURL:   r.ThumbnailURL,
			EmbedHTML:  r.HTML,
			Embeddable: true,
			Platform:   p,
			SiteName:   site,
		}
		if withDescription {
			lp.Description = r.Description
		}
		return lp
	}
}

// buildTwitter extracts the tweet text from the first <p> of the embed
// markup. Tweets are rendered natively, so the preview is not embeddable.
func buildTwitter(_ string, r oembedResponse) *model.LinkPreview {
	var tweet string
	if r.HTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(r.HTML)); err == nil {
			tweet = doc.Find("p").First().Text()
		}
	}

	lp := &model.LinkPreview{
		Author:      strings.ReplaceAll(r.AuthorName, "@", ""),
		EmbedHTML:   r.HTML,
		Embeddable:  false,
		Platform:    model.PlatformTwitter,
		SiteName:    "X",
		Title:       r.AuthorName,
		TextContent: r.AuthorName,
	}
	if tweet != "" {
		lp.Title = model.Truncate(tweet, 100)
		lp.TextContent = tweet
	}
	return lp
}

func buildInstagram(_ string, r oembedResponse) *model.LinkPreview {
	title := r.Title
	if title == "" {
		title = "Instagram Post"
	}
	return &model.LinkPreview{
		Title:      title,
		Author:     r.AuthorName,
		ImageURL:   r.ThumbnailURL,
		Embeddable: false,
		Platform:   model.PlatformInstagram,
		SiteName:   "Instagram",
	}
}

// hasLastPathSegment reports whether the path ends in a non-empty segment,
// such as a Vimeo video id.
func hasLastPathSegment(u *url.URL) bool {
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			return true
		}
	}
	return false
}

// OEmbedResolver queries oEmbed providers. Each provider sits behind its
// own circuit breaker so a provider that keeps timing out is skipped
// quickly instead of costing a full timeout per feed item.
type OEmbedResolver struct {
	client    *http.Client
	userAgent string
	endpoints map[model.Platform]string
	igToken   string
	breakers  map[model.Platform]*gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewOEmbedResolver creates a resolver. Endpoints in opts override
// DefaultEndpoints per platform.
func NewOEmbedResolver(opts Options, logger *zap.Logger) *OEmbedResolver {
	opts = opts.withDefaults()
	return newOEmbedResolver(opts, newHTTPClient(opts), logger)
}

func newOEmbedResolver(opts Options, client *http.Client, logger *zap.Logger) *OEmbedResolver {
	endpoints := make(map[model.Platform]string, len(DefaultEndpoints))
	for p, tmpl := range DefaultEndpoints {
		endpoints[p] = tmpl
	}
	for p, tmpl := range opts.Endpoints {
		endpoints[p] = tmpl
	}

	r := &OEmbedResolver{
		client:    client,
		userAgent: opts.UserAgent,
		endpoints: endpoints,
		igToken:   opts.InstagramToken,
		breakers:  make(map[model.Platform]*gobreaker.CircuitBreaker, len(providers)),
		logger:    logger,
	}

	for p := range providers {
		r.breakers[p] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "oembed-" + string(p),
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// A provider answering 4xx is healthy; only transport
			// failures and 5xx count against it.
			IsSuccessful: func(err error) bool {
				var se *statusError
				if errors.As(err, &se) {
					return se.Code < 500
				}
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("oembed circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}

	return r
}

// Resolve tries the platform's provider. When that provider has nothing
// (non-200 or a rejected payload) the generic proxy is tried next.
// Instagram without an access token, and non-embeddable platforms, yield
// Empty without any request.
func (r *OEmbedResolver) Resolve(ctx context.Context, rawURL string, platform model.Platform) Result {
	if !IsEmbeddable(platform) {
		return empty()
	}

	if platform == model.PlatformInstagram {
		if r.igToken == "" {
			return empty()
		}
		return r.query(ctx, rawURL, providers[platform])
	}

	res := r.query(ctx, rawURL, providers[platform])
	if res.Outcome != Empty || platform == model.PlatformGeneric {
		return res
	}

	return r.query(ctx, rawURL, providers[model.PlatformGeneric])
}

func (r *OEmbedResolver) query(ctx context.Context, rawURL string, p provider) Result {
	u, err := url.Parse(rawURL)
	if err != nil {
		return failed(fmt.Errorf("parsing url: %w", err))
	}
	if p.accept != nil && !p.accept(u) {
		return empty()
	}

	endpoint := fmt.Sprintf(r.endpoints[p.platform], url.QueryEscape(rawURL))
	if p.platform == model.PlatformInstagram {
		endpoint += "&access_token=" + url.QueryEscape(r.igToken)
	}

	body, err := r.breakers[p.platform].Execute(func() (interface{}, error) {
		return r.get(ctx, endpoint)
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			r.logger.Debug("oembed provider returned no data",
				zap.String("platform", string(p.platform)),
				zap.String("url", rawURL),
				zap.Int("status", se.Code),
			)
			return empty()
		}
		r.logger.Warn("oembed request failed",
			zap.String("platform", string(p.platform)),
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return failed(err)
	}

	var resp oembedResponse
	if err := json.Unmarshal(body.([]byte), &resp); err != nil {
		r.logger.Warn("decoding oembed response",
			zap.String("platform", string(p.platform)),
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return failed(fmt.Errorf("decoding oembed response: %w", err))
	}

	if p.strict && (resp.HTML == "" || resp.Error != "") {
		return empty()
	}

	return found(p.build(rawURL, resp))
}

func (r *OEmbedResolver) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxOEmbedBody))
		return nil, &statusError{URL: endpoint, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOEmbedBody))
	if err != nil {
		return nil, fmt.Errorf("reading oembed body: %w", err)
	}
	return body, nil
}
