package store

import (
	"context"
	"errors"

	"github.com/nhle/linkfeed/internal/model"
)

// ErrInvalidRecord is returned when a record lacks a sender or link, or is
// keyed by a Date header it does not carry.
var ErrInvalidRecord = errors.New("feed record requires sender_email and core_link")

// RecordFilter controls filtering and pagination for feed record queries.
// Results are always ordered by received_at descending.
type RecordFilter struct {
	// SenderEmails restricts results to these senders; empty means all.
	SenderEmails []string
	Limit        int
	Offset       int
}

// Store defines the persistence capability for feed link records. The
// uniqueness of (sender_email, core_link, received_at) is enforced by the
// storage engine itself. Records keyed by header are unique on
// (sender_email, core_link, received_header) instead.
type Store interface {
	// InsertIfAbsent stores rec unless an identical triple exists.
	// A duplicate is not an error: it returns inserted=false.
	InsertIfAbsent(ctx context.Context, rec model.FeedLinkRecord) (bool, error)

	// QueryRecords returns records matching filter, newest first.
	QueryRecords(ctx context.Context, filter RecordFilter) ([]model.FeedLinkRecord, error)

	// CountRecords returns how many records match filter, ignoring
	// Limit and Offset.
	CountRecords(ctx context.Context, filter RecordFilter) (int, error)

	// DeleteRecordsBySender removes every record from a sender. It exists
	// for account cleanup; records are otherwise immutable.
	DeleteRecordsBySender(ctx context.Context, sender string) (int64, error)

	// Ping verifies the storage engine is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// validate checks the fields every engine requires.
func validate(rec model.FeedLinkRecord) error {
	if rec.SenderEmail == "" || rec.CoreLink == "" {
		return ErrInvalidRecord
	}
	if rec.KeyedByHeader && rec.ReceivedHeader == "" {
		return ErrInvalidRecord
	}
	return nil
}
