package model

import "unicode/utf8"

// Platform identifies the metadata-resolution strategy family for a URL.
type Platform string

const (
	PlatformTwitter    Platform = "twitter"
	PlatformYouTube    Platform = "youtube"
	PlatformVimeo      Platform = "vimeo"
	PlatformSpotify    Platform = "spotify"
	PlatformSoundCloud Platform = "soundcloud"
	PlatformTikTok     Platform = "tiktok"
	PlatformInstagram  Platform = "instagram"
	PlatformReddit     Platform = "reddit"
	PlatformGeneric    Platform = "generic"
	PlatformOther      Platform = "other"

	// PlatformArticle tags previews built by the generic article scraper.
	PlatformArticle Platform = "article"
)

// Length caps applied to extracted text, counted in runes.
const (
	MaxTitleLen       = 500
	MaxDescriptionLen = 1000
	MaxTextContentLen = 2000
)

// LinkPreview is display-ready metadata for a single URL. It is built
// fresh on every resolution and never persisted. Empty strings mean the
// field is absent.
type LinkPreview struct {
	Title         string   `json:"title,omitempty"`
	Description   string   `json:"description,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	SiteName      string   `json:"site_name,omitempty"`
	Author        string   `json:"author,omitempty"`
	Platform      Platform `json:"platform,omitempty"`
	Subreddit     string   `json:"subreddit,omitempty"`
	PublishedTime string   `json:"published_time,omitempty"`
	TextContent   string   `json:"text_content,omitempty"`
	Images        []string `json:"images,omitempty"`
	EmbedHTML     string   `json:"embed_html,omitempty"`
	Embeddable    bool     `json:"embeddable"`
}

// HasImage reports whether the preview carries a primary image.
func (p *LinkPreview) HasImage() bool {
	return p != nil && p.ImageURL != ""
}

// Clamp enforces the title, description and text content length caps.
func (p *LinkPreview) Clamp() {
	if p == nil {
		return
	}
	p.Title = Truncate(p.Title, MaxTitleLen)
	p.Description = Truncate(p.Description, MaxDescriptionLen)
	p.TextContent = Truncate(p.TextContent, MaxTextContentLen)
}

// Truncate returns s cut to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
