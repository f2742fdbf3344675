package preview

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/linkfeed/internal/metrics"
	"github.com/nhle/linkfeed/internal/model"
)

func TestResolve_YouTubeOEmbed(t *testing.T) {
	r := newTestResolver(t, hosts{
		"noembed.com": func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "https://www.youtube.com/watch?v=abc", req.URL.Query().Get("url"))
			serveJSON(`{
				"title": "Gophers at work",
				"author_name": "Go Channel",
				"thumbnail_url": "https://i.ytimg.com/vi/abc/hq.jpg",
				"html": "<iframe src=\"https://www.youtube.com/embed/abc\"></iframe>"
			}`)(w, req)
		},
		"www.youtube.com": unreachable(t),
	})

	lp := r.Resolve(context.Background(), "https://www.youtube.com/watch?v=abc")
	require.NotNil(t, lp)

	assert.Equal(t, "Gophers at work", lp.Title)
	assert.Equal(t, "Go Channel", lp.Author)
	assert.Equal(t, "https://i.ytimg.com/vi/abc/hq.jpg", lp.ImageURL)
	assert.Contains(t, lp.EmbedHTML, "youtube.com/embed/abc")
	assert.True(t, lp.Embeddable)
	assert.Equal(t, model.PlatformYouTube, lp.Platform)
	assert.Equal(t, "YouTube", lp.SiteName)
	assert.Empty(t, lp.Description)
}

func TestResolve_OEmbedTimeoutFallsBackToScrape(t *testing.T) {
	opts := newTestOptions(t, hosts{
		"noembed.com": func(w http.ResponseWriter, req *http.Request) {
			select {
			case <-req.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
		"www.youtube.com": serveHTML(`<html><head>
			<meta property="og:title" content="Scraped video title">
			<meta property="og:image" content="/vi/abc.jpg">
			</head></html>`),
	})
	opts.Timeout = 150 * time.Millisecond
	r := NewResolver(opts, zaptest.NewLogger(t))

	lp := r.Resolve(context.Background(), "https://www.youtube.com/watch?v=abc")
	require.NotNil(t, lp)
	assert.Equal(t, "Scraped video title", lp.Title)
	assert.Equal(t, "https://www.youtube.com/vi/abc.jpg", lp.ImageURL)
	assert.Equal(t, model.PlatformArticle, lp.Platform)
}

func TestResolve_InstagramPlaceholderWithoutToken(t *testing.T) {
	r := newTestResolver(t, hosts{
		"graph.facebook.com": unreachable(t),
		"noembed.com":        unreachable(t),
		"instagram.com":      unreachable(t),
	})
	placeholders := metrics.PreviewResolutions.WithLabelValues(string(model.PlatformInstagram), SourcePlaceholder)
	scrapes := metrics.PreviewResolutions.WithLabelValues(string(model.PlatformInstagram), StageScrape)
	beforePlaceholder, beforeScrape := testutil.ToFloat64(placeholders), testutil.ToFloat64(scrapes)

	lp := r.Resolve(context.Background(), "https://instagram.com/p/xyz")
	require.NotNil(t, lp)
	assert.Equal(t, "Instagram Post", lp.Title)
	assert.Equal(t, "View on Instagram (login may be required)", lp.Description)
	assert.Equal(t, model.PlatformInstagram, lp.Platform)
	assert.False(t, lp.Embeddable)

	assert.Equal(t, beforePlaceholder+1, testutil.ToFloat64(placeholders))
	assert.Equal(t, beforeScrape, testutil.ToFloat64(scrapes))
}

func TestSource(t *testing.T) {
	assert.Equal(t, SourcePlaceholder, source(StageScrape, model.PlatformInstagram))
	assert.Equal(t, StageScrape, source(StageScrape, model.PlatformArticle))
	assert.Equal(t, StageOEmbed, source(StageOEmbed, model.PlatformInstagram))
}

func TestResolve_InstagramGraphFailureYieldsPlaceholder(t *testing.T) {
	var calls atomic.Int32
	opts := newTestOptions(t, hosts{
		"graph.facebook.com": func(w http.ResponseWriter, req *http.Request) {
			calls.Add(1)
			assert.Equal(t, "secret", req.URL.Query().Get("access_token"))
			w.WriteHeader(http.StatusBadRequest)
		},
		"instagram.com": unreachable(t),
	})
	opts.InstagramToken = "secret"
	r := NewResolver(opts, zaptest.NewLogger(t))

	lp := r.Resolve(context.Background(), "https://instagram.com/p/xyz")
	require.NotNil(t, lp)
	assert.Equal(t, "Instagram Post", lp.Title)
	assert.EqualValues(t, 1, calls.Load())
}

func TestResolve_InstagramGraphSuccess(t *testing.T) {
	opts := newTestOptions(t, hosts{
		"graph.facebook.com": serveJSON(`{"author_name":"jane","thumbnail_url":"https://cdn.example.com/ig.jpg"}`),
	})
	opts.InstagramToken = "secret"
	r := NewResolver(opts, zaptest.NewLogger(t))

	lp := r.Resolve(context.Background(), "https://www.instagram.com/p/xyz/")
	require.NotNil(t, lp)
	assert.Equal(t, "Instagram Post", lp.Title)
	assert.Equal(t, "jane", lp.Author)
	assert.Equal(t, "https://cdn.example.com/ig.jpg", lp.ImageURL)
	assert.False(t, lp.Embeddable)
	assert.Empty(t, lp.EmbedHTML)
}

func TestResolve_ArticleDescriptionTruncated(t *testing.T) {
	long := strings.Repeat("d", 5000)
	r := newTestResolver(t, hosts{
		"news.example.com": serveHTML(`<html><head>
			<meta property="og:title" content="Story">
			<meta property="og:description" content="` + long + `">
			</head><body><p>ignored</p></body></html>`),
	})

	lp := r.Resolve(context.Background(), "https://news.example.com/story?utm=1")
	require.NotNil(t, lp)
	assert.Equal(t, "Story", lp.Title)
	assert.Equal(t, 1000, utf8.RuneCountInString(lp.Description))
}

func TestResolve_TwitterOEmbedWithImageSupplement(t *testing.T) {
	r := newTestResolver(t, hosts{
		"publish.twitter.com": serveJSON(`{
			"author_name": "@jane",
			"html": "<blockquote class=\"twitter-tweet\"><p lang=\"en\">Shipping Go today</p>&mdash; Jane</blockquote>"
		}`),
		"x.com": serveHTML(`<html><head>
			<meta name="twitter:image" content="https://pbs.example.com/tw.jpg">
			<meta property="og:image" content="/og/card.png">
			</head></html>`),
	})

	lp := r.Resolve(context.Background(), "https://x.com/jane/status/1")
	require.NotNil(t, lp)
	assert.Equal(t, "Shipping Go today", lp.Title)
	assert.Equal(t, "Shipping Go today", lp.TextContent)
	assert.Equal(t, "jane", lp.Author)
	assert.Equal(t, "X", lp.SiteName)
	assert.False(t, lp.Embeddable)
	assert.Contains(t, lp.EmbedHTML, "twitter-tweet")
	assert.Equal(t, "https://x.com/og/card.png", lp.ImageURL, "og:image wins over twitter:image")
}

func TestResolve_TwitterOEmbedImageSupplementFailureIgnored(t *testing.T) {
	r := newTestResolver(t, hosts{
		"publish.twitter.com": serveJSON(`{"author_name":"jane","html":"<blockquote><p>Hi</p></blockquote>"}`),
		"x.com":               serveStatus(http.StatusForbidden),
	})

	lp := r.Resolve(context.Background(), "https://x.com/jane/status/2")
	require.NotNil(t, lp)
	assert.Equal(t, "Hi", lp.Title)
	assert.Empty(t, lp.ImageURL)
}

func TestResolve_TwitterFallsBackToCardScrape(t *testing.T) {
	r := newTestResolver(t, hosts{
		"publish.twitter.com": serveStatus(http.StatusNotFound),
		"noembed.com":         serveJSON(`{"error":"no matching providers found","url":"x"}`),
		"twitter.com": serveHTML(`<html><head>
			<meta name="twitter:title" content="Jane on Twitter">
			<meta name="twitter:description" content="Shipping Go today">
			<meta name="twitter:creator" content="@jane">
			<meta property="og:image" content="/card.png">
			</head></html>`),
	})

	lp := r.Resolve(context.Background(), "https://twitter.com/jane/status/1")
	require.NotNil(t, lp)
	assert.Equal(t, "Jane on Twitter\n\nShipping Go today", lp.TextContent)
	assert.Equal(t, lp.TextContent, lp.Title)
	assert.Equal(t, "jane", lp.Author)
	assert.Equal(t, "Twitter", lp.SiteName)
	assert.Equal(t, "https://twitter.com/card.png", lp.ImageURL)
	assert.Equal(t, model.PlatformTwitter, lp.Platform)
	assert.False(t, lp.Embeddable)
}

func TestResolve_RedditScrapeRecoversSubreddit(t *testing.T) {
	r := newTestResolver(t, hosts{
		"noembed.com": serveJSON(`{"title":"no embed","html":""}`),
		"www.reddit.com": serveHTML(`<html><head>
			<meta property="og:title" content="What is your favourite Go library?">
			<meta property="og:description" content="Discussion thread">
			<meta property="og:image" content="https://preview.redd.it/x.png">
			</head></html>`),
	})

	lp := r.Resolve(context.Background(), "https://www.reddit.com/r/golang/comments/abc/title/")
	require.NotNil(t, lp)
	assert.Equal(t, "What is your favourite Go library?", lp.Title)
	assert.Equal(t, "Discussion thread", lp.Description)
	assert.Equal(t, "r/golang", lp.Subreddit)
	assert.Equal(t, "Reddit", lp.SiteName)
	assert.Equal(t, model.PlatformReddit, lp.Platform)
}

func TestResolve_GenericOEmbed(t *testing.T) {
	r := newTestResolver(t, hosts{
		"noembed.com": serveJSON(`{
			"title": "A clip",
			"provider_name": "Dailymotion",
			"html": "<iframe></iframe>"
		}`),
	})

	lp := r.Resolve(context.Background(), "https://www.dailymotion.com/video/x1")
	require.NotNil(t, lp)
	assert.Equal(t, "A clip", lp.Title)
	assert.Equal(t, "Dailymotion", lp.SiteName)
	assert.Equal(t, model.PlatformOther, lp.Platform)
	assert.True(t, lp.Embeddable)
}

func TestResolve_NonHTMLContent(t *testing.T) {
	r := newTestResolver(t, hosts{
		"www.example.com": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4"))
		},
	})

	lp := r.Resolve(context.Background(), "https://www.example.com/report.pdf")
	require.NotNil(t, lp)
	assert.Equal(t, "example.com", lp.SiteName)
	assert.Equal(t, model.PlatformOther, lp.Platform)
	assert.Empty(t, lp.Title)
}

func TestResolve_ScrapeFailureYieldsNil(t *testing.T) {
	r := newTestResolver(t, hosts{
		"down.example.com": serveStatus(http.StatusInternalServerError),
	})

	assert.Nil(t, r.Resolve(context.Background(), "https://down.example.com/x"))
	assert.Nil(t, r.Resolve(context.Background(), "mailto:a@b.c"))
	assert.Nil(t, r.Resolve(context.Background(), ""))
}

func TestResolve_FollowsRedirectsForRelativeImages(t *testing.T) {
	r := newTestResolver(t, hosts{
		"short.example.com": func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, "https://news.example.org/a/b", http.StatusFound)
		},
		"news.example.org": serveHTML(`<html><head>
			<meta property="og:title" content="Moved">
			<meta property="og:image" content="img.png">
			</head></html>`),
	})

	lp := r.Resolve(context.Background(), "https://short.example.com/s")
	require.NotNil(t, lp)
	assert.Equal(t, "Moved", lp.Title)
	assert.Equal(t, "https://news.example.org/a/img.png", lp.ImageURL)
}
