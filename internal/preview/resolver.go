package preview

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/linkfeed/internal/metrics"
	"github.com/nhle/linkfeed/internal/model"
)

// Strategy stage names, also used as metric labels.
const (
	StageOEmbed = "oembed"
	StageScrape = "scrape"
)

// Resolution sources that are not stages.
const (
	SourcePlaceholder = "placeholder"
	SourceNone        = "none"
)

// strategy is one resolution stage in the fallback chain.
type strategy struct {
	stage string
	run   func(ctx context.Context, rawURL string, platform model.Platform) Result
}

// Resolver turns a URL into a LinkPreview by classifying it and walking an
// ordered chain of strategies until one finds a preview.
type Resolver struct {
	oembed  *OEmbedResolver
	scraper *Scraper
	logger  *zap.Logger
}

// NewResolver builds a resolver whose oEmbed and scraping stages share one
// HTTP client.
func NewResolver(opts Options, logger *zap.Logger) *Resolver {
	opts = opts.withDefaults()
	client := newHTTPClient(opts)

	return &Resolver{
		oembed:  newOEmbedResolver(opts, client, logger),
		scraper: newScraper(opts, client, logger),
		logger:  logger,
	}
}

// chain returns the strategies for a platform in the order they run.
func (r *Resolver) chain(platform model.Platform) []strategy {
	scrape := strategy{stage: StageScrape, run: r.scraper.Scrape}
	if !IsEmbeddable(platform) {
		return []strategy{scrape}
	}
	return []strategy{{stage: StageOEmbed, run: r.oembed.Resolve}, scrape}
}

// Resolve returns a preview for rawURL, or nil when no stage produced one.
// Failures never escape: a nil preview is a normal result.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (lp *model.LinkPreview) {
	if !IsHTTPURL(rawURL) {
		return nil
	}

	platform := Classify(rawURL)
	log := r.logger.With(zap.String("url", rawURL), zap.String("platform", string(platform)))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic resolving preview", zap.Any("panic", rec))
			lp = nil
		}
	}()

	for _, s := range r.chain(platform) {
		start := time.Now()
		res := s.run(ctx, rawURL, platform)
		metrics.RecordStageDuration(s.stage, time.Since(start))

		switch res.Outcome {
		case Found:
			if s.stage == StageOEmbed && platform == model.PlatformTwitter && !res.Preview.HasImage() {
				r.supplementImage(ctx, rawURL, res.Preview)
			}
			res.Preview.Clamp()
			metrics.RecordPreview(string(res.Preview.Platform), source(s.stage, platform))
			return res.Preview
		case Failed:
			log.Debug("preview stage failed", zap.String("stage", s.stage), zap.Error(res.Err))
		default:
			log.Debug("preview stage empty", zap.String("stage", s.stage))
		}
	}

	metrics.RecordPreview(string(platform), SourceNone)
	return nil
}

// source names what produced a found preview. The scrape stage never
// fetches Instagram pages, so its result there is the fixed placeholder.
func source(stage string, platform model.Platform) string {
	if stage == StageScrape && platform == model.PlatformInstagram {
		return SourcePlaceholder
	}
	return stage
}

// supplementImage makes one best-effort page fetch to give an oEmbed tweet
// an image. Failure leaves the preview unchanged.
func (r *Resolver) supplementImage(ctx context.Context, rawURL string, lp *model.LinkPreview) {
	start := time.Now()
	img := r.scraper.FetchImage(ctx, rawURL)
	metrics.RecordStageDuration("image", time.Since(start))

	if img != "" {
		lp.ImageURL = img
	}
}
