package model

import "time"

// FeedLinkRecord is the single primary link extracted from one mailbox
// message. Records are never mutated after insert.
type FeedLinkRecord struct {
	// ID is the internal unique identifier for this record.
	ID string `json:"id" db:"id"`

	// SenderEmail is the bare address taken from the From header.
	SenderEmail string `json:"sender_email" db:"sender_email"`

	// CoreLink is the primary URL selected from the message body.
	CoreLink string `json:"core_link" db:"core_link"`

	// ReceivedAt is the message Date header as delivered, stored in UTC.
	// Together with SenderEmail and CoreLink it forms the uniqueness key.
	ReceivedAt time.Time `json:"received_at" db:"received_at"`

	// ReceivedHeader is the raw Date header text, kept verbatim.
	ReceivedHeader string `json:"received_header,omitempty" db:"received_header"`

	// KeyedByHeader marks a record whose Date header could not be parsed.
	// ReceivedAt then holds the processing time, and duplicates are
	// detected by SenderEmail, CoreLink and the raw ReceivedHeader.
	KeyedByHeader bool `json:"-" db:"keyed_by_header"`

	// ProcessedAt is when the poller recorded the link.
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}
