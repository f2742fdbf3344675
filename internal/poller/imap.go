package poller

import (
	"context"

	"github.com/nhle/linkfeed/internal/mailbox"
)

// imapMailbox adapts *mailbox.IMAPClient to Mailbox.
type imapMailbox struct {
	client *mailbox.IMAPClient
}

// FromIMAP wraps an IMAP client for use by the poller.
func FromIMAP(client *mailbox.IMAPClient) Mailbox {
	return imapMailbox{client: client}
}

func (m imapMailbox) Open(ctx context.Context) (Session, error) {
	sess, err := m.client.Open(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
