package preview

import (
	"strings"

	"github.com/nhle/linkfeed/internal/model"
)

// platformDomains maps registrable domains to platforms. A host matches a
// domain when it equals it or is a subdomain of it, so www., m., mobile.,
// open. and vm. prefixes all classify the same way.
var platformDomains = []struct {
	domain   string
	platform model.Platform
}{
	{"twitter.com", model.PlatformTwitter},
	{"x.com", model.PlatformTwitter},
	{"youtube.com", model.PlatformYouTube},
	{"youtu.be", model.PlatformYouTube},
	{"youtube-nocookie.com", model.PlatformYouTube},
	{"vimeo.com", model.PlatformVimeo},
	{"spotify.com", model.PlatformSpotify},
	{"spotify.link", model.PlatformSpotify},
	{"soundcloud.com", model.PlatformSoundCloud},
	{"tiktok.com", model.PlatformTikTok},
	{"instagram.com", model.PlatformInstagram},
	{"instagr.am", model.PlatformInstagram},
	{"reddit.com", model.PlatformReddit},
	{"redd.it", model.PlatformReddit},

	// Providers the generic oEmbed proxy understands.
	{"dailymotion.com", model.PlatformGeneric},
	{"flickr.com", model.PlatformGeneric},
	{"flic.kr", model.PlatformGeneric},
	{"ted.com", model.PlatformGeneric},
	{"twitch.tv", model.PlatformGeneric},
	{"imgur.com", model.PlatformGeneric},
	{"giphy.com", model.PlatformGeneric},
	{"slideshare.net", model.PlatformGeneric},
	{"codepen.io", model.PlatformGeneric},
}

// Classify returns the platform whose domain matches the URL's host,
// or model.PlatformOther.
func Classify(rawURL string) model.Platform {
	host := Hostname(rawURL)
	if host == "" {
		return model.PlatformOther
	}

	for _, pd := range platformDomains {
		if host == pd.domain || strings.HasSuffix(host, "."+pd.domain) {
			return pd.platform
		}
	}
	return model.PlatformOther
}

// IsEmbeddable reports whether oEmbed should be attempted before scraping.
func IsEmbeddable(p model.Platform) bool {
	switch p {
	case model.PlatformTwitter, model.PlatformYouTube, model.PlatformVimeo,
		model.PlatformSpotify, model.PlatformSoundCloud, model.PlatformTikTok,
		model.PlatformInstagram, model.PlatformReddit, model.PlatformGeneric:
		return true
	default:
		return false
	}
}
