package feed

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/linkfeed/internal/model"
	"github.com/nhle/linkfeed/internal/store"
)

// Page size bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Previewer resolves a URL into a preview, or nil when none is available.
type Previewer interface {
	Resolve(ctx context.Context, rawURL string) *model.LinkPreview
}

// RecordReader is the read half of the store.
type RecordReader interface {
	QueryRecords(ctx context.Context, filter store.RecordFilter) ([]model.FeedLinkRecord, error)
	CountRecords(ctx context.Context, filter store.RecordFilter) (int, error)
}

// Query selects one page of the feed.
type Query struct {
	// SenderEmails are the addresses the reader may see; empty means all.
	SenderEmails []string
	// Sender narrows the feed to one address within SenderEmails.
	Sender string
	// Page is 1-based.
	Page  int
	Limit int
}

// Item is a feed record with its freshly resolved preview.
type Item struct {
	ID          string             `json:"id"`
	SenderEmail string             `json:"sender_email"`
	CoreLink    string             `json:"core_link"`
	ReceivedAt  time.Time          `json:"received_date"`
	ProcessedAt time.Time          `json:"processed_date"`
	Preview     *model.LinkPreview `json:"preview"`
}

// Page is one page of feed items.
type Page struct {
	Items   []Item `json:"items"`
	Total   int    `json:"total"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
	HasMore bool   `json:"has_more"`
}

// Service serves the feed read path.
type Service struct {
	records  RecordReader
	previews Previewer
	maxLimit int
	logger   *zap.Logger
}

// NewService creates a feed service. A maxLimit of zero uses MaxLimit.
func NewService(records RecordReader, previews Previewer, maxLimit int, logger *zap.Logger) *Service {
	if maxLimit <= 0 || maxLimit > MaxLimit {
		maxLimit = MaxLimit
	}
	return &Service{
		records:  records,
		previews: previews,
		maxLimit: maxLimit,
		logger:   logger,
	}
}

// Normalize clamps page and limit into range: page >= 1 and
// 1 <= limit <= the service maximum, with DefaultLimit for zero.
func (s *Service) Normalize(q Query) Query {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit < 1:
		q.Limit = 1
	case q.Limit > s.maxLimit:
		q.Limit = s.maxLimit
	}
	return q
}

// List returns a page of the feed, newest first. Previews are resolved one
// item at a time; a missing preview is not an error.
func (s *Service) List(ctx context.Context, q Query) (*Page, error) {
	q = s.Normalize(q)
	out := &Page{Items: []Item{}, Page: q.Page, Limit: q.Limit}

	senders := q.SenderEmails
	if q.Sender != "" {
		if len(senders) > 0 && !slices.Contains(senders, q.Sender) {
			return out, nil
		}
		senders = []string{q.Sender}
	}

	filter := store.RecordFilter{SenderEmails: senders}

	total, err := s.records.CountRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("counting feed: %w", err)
	}
	out.Total = total

	filter.Limit = q.Limit
	filter.Offset = (q.Page - 1) * q.Limit

	records, err := s.records.QueryRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying feed: %w", err)
	}

	for _, rec := range records {
		item := Item{
			ID:          rec.ID,
			SenderEmail: rec.SenderEmail,
			CoreLink:    rec.CoreLink,
			ReceivedAt:  rec.ReceivedAt,
			ProcessedAt: rec.ProcessedAt,
		}
		if s.previews != nil {
			item.Preview = s.previews.Resolve(ctx, rec.CoreLink)
		}
		out.Items = append(out.Items, item)
	}

	out.HasMore = q.Page*q.Limit < total

	s.logger.Debug("feed page served",
		zap.Int("page", q.Page),
		zap.Int("limit", q.Limit),
		zap.Int("items", len(out.Items)),
		zap.Int("total", total),
	)
	return out, nil
}
