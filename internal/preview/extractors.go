package preview

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nhle/linkfeed/internal/model"
)

// maxArticleImages caps the article image list.
const maxArticleImages = 5

// metaProperty returns the content of the first <meta property=prop>.
func metaProperty(doc *goquery.Document, prop string) string {
	return metaContent(doc.Find(`meta[property="` + prop + `"]`))
}

// metaName returns the content of the first <meta name=name>. Twitter
// Card tags published with property= instead of name= are accepted too.
func metaName(doc *goquery.Document, name string) string {
	sel := doc.Find(`meta[name="` + name + `"]`)
	if sel.Length() == 0 && strings.HasPrefix(name, "twitter:") {
		sel = doc.Find(`meta[property="` + name + `"]`)
	}
	return metaContent(sel)
}

func metaContent(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().AttrOr("content", ""))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// extractTwitter reads Twitter Card tags, then Open Graph. The post text
// is the title and description joined when they differ.
func extractTwitter(pg *page, rawURL string) *model.LinkPreview {
	doc := pg.doc

	title := firstNonEmpty(metaName(doc, "twitter:title"), metaProperty(doc, "og:title"))
	description := firstNonEmpty(metaName(doc, "twitter:description"), metaProperty(doc, "og:description"))

	text := firstNonEmpty(title, description)
	if title != "" && description != "" && title != description {
		text = title + "\n\n" + description
	}

	image := firstNonEmpty(metaName(doc, "twitter:image"), metaProperty(doc, "og:image"))

	site := "X"
	if strings.Contains(rawURL, "twitter.com") {
		site = "Twitter"
	}

	return &model.LinkPreview{
		Title:       model.Truncate(text, model.MaxTitleLen),
		TextContent: model.Truncate(text, model.MaxTextContentLen),
		ImageURL:    AbsoluteURL(image, pg.finalURL),
		SiteName:    site,
		Author:      strings.ReplaceAll(metaName(doc, "twitter:creator"), "@", ""),
		Platform:    model.PlatformTwitter,
		Embeddable:  false,
	}
}

// extractReddit reads Open Graph tags and recovers the subreddit from the
// /r/<name>/ path segment.
func extractReddit(pg *page) *model.LinkPreview {
	doc := pg.doc

	return &model.LinkPreview{
		Title:       metaProperty(doc, "og:title"),
		Description: metaProperty(doc, "og:description"),
		ImageURL:    AbsoluteURL(metaProperty(doc, "og:image"), pg.finalURL),
		SiteName:    firstNonEmpty(metaProperty(doc, "og:site_name"), "Reddit"),
		Subreddit:   subreddit(pg.finalURL),
		Platform:    model.PlatformReddit,
		Embeddable:  false,
	}
}

func subreddit(u *url.URL) string {
	if u == nil {
		return ""
	}

	var parts []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	for i, seg := range parts {
		if seg == "r" && i+1 < len(parts) {
			return "r/" + parts[i+1]
		}
	}
	return ""
}

// extractArticle cascades through Open Graph, Twitter Card, standard meta
// and document content for each field.
func extractArticle(pg *page) *model.LinkPreview {
	doc := pg.doc

	title := firstNonEmpty(
		metaProperty(doc, "og:title"),
		metaName(doc, "twitter:title"),
		strings.TrimSpace(doc.Find("title").First().Text()),
		strings.TrimSpace(doc.Find("h1").First().Text()),
	)

	description := firstNonEmpty(
		metaProperty(doc, "og:description"),
		metaName(doc, "twitter:description"),
		metaName(doc, "description"),
		strings.TrimSpace(doc.Find("p").First().Text()),
	)

	images := articleImages(pg)

	site := firstNonEmpty(
		metaProperty(doc, "og:site_name"),
		metaName(doc, "application-name"),
	)
	if site == "" && pg.finalURL != nil {
		site = siteNameFromHost(strings.ToLower(pg.finalURL.Hostname()))
	}

	lp := &model.LinkPreview{
		Title:         title,
		Description:   description,
		SiteName:      site,
		Author:        metaProperty(doc, "article:author"),
		PublishedTime: metaProperty(doc, "article:published_time"),
		Platform:      model.PlatformArticle,
		Embeddable:    false,
	}
	if len(images) > 0 {
		lp.ImageURL = images[0]
		lp.Images = images
	}
	return lp
}

// articleImages collects og:image URLs in document order, using
// twitter:image only when no og:image exists. URLs are made absolute,
// de-duplicated and capped.
func articleImages(pg *page) []string {
	var images []string
	seen := make(map[string]bool)
	add := func(raw string) {
		if raw == "" {
			return
		}
		abs := AbsoluteURL(raw, pg.finalURL)
		if seen[abs] {
			return
		}
		seen[abs] = true
		images = append(images, abs)
	}

	pg.doc.Find(`meta[property="og:image"]`).Each(func(_ int, s *goquery.Selection) {
		add(strings.TrimSpace(s.AttrOr("content", "")))
	})
	if len(images) == 0 {
		add(metaName(pg.doc, "twitter:image"))
	}

	if len(images) > maxArticleImages {
		images = images[:maxArticleImages]
	}
	return images
}

func instagramPlaceholder() *model.LinkPreview {
	return &model.LinkPreview{
		Title:       "Instagram Post",
		Description: "View on Instagram (login may be required)",
		SiteName:    "Instagram",
		Platform:    model.PlatformInstagram,
		Embeddable:  false,
	}
}
