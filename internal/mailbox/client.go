package mailbox

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPClient wraps go-imap v2 for connecting to the shared mailbox.
type IMAPClient struct {
	host     string
	port     string
	username string
	password string
	tls      bool
	folder   string
}

// NewIMAPClient creates a new IMAP client configuration. An empty folder
// selects INBOX.
func NewIMAPClient(
	host, port, username, password string, tls bool, folder string,
) *IMAPClient {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAPClient{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
		folder:   folder,
	}
}

// Addr returns the host:port the client dials.
func (c *IMAPClient) Addr() string {
	return c.host + ":" + c.port
}

// Open connects, authenticates and selects the configured folder. The
// returned session must be closed by the caller. Dial, login and select
// failures are reported as *ConnectError. Cancelling ctx closes the
// underlying connection, which unblocks any command in flight.
func (c *IMAPClient) Open(ctx context.Context) (*Session, error) {
	addr := c.Addr()

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, &ConnectError{
			Addr:    addr,
			Message: fmt.Sprintf("connecting to IMAP: %v", err),
			Err:     err,
		}
	}

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		stop()
		_ = client.Close()
		return nil, &ConnectError{
			Addr: addr,
			Auth: true,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v", c.username, err,
			),
			Err: err,
		}
	}

	if _, err := client.Select(c.folder, nil).Wait(); err != nil {
		stop()
		_ = client.Logout().Wait()
		_ = client.Close()
		return nil, &ConnectError{
			Addr:    addr,
			Message: fmt.Sprintf("selecting %s: %v", c.folder, err),
			Err:     err,
		}
	}

	return &Session{client: client, stop: stop}, nil
}

// Session is an authenticated connection with a folder selected.
type Session struct {
	client *imapclient.Client
	stop   func() bool
}

// UnseenUIDs returns the UIDs of every message without the \Seen flag.
func (s *Session) UnseenUIDs(_ context.Context) ([]uint32, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}

	uids := searchData.AllUIDs()
	result := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		result = append(result, uint32(uid))
	}
	return result, nil
}

// FetchRaw returns the full RFC 5322 source of the message with the given
// UID. The body is fetched without PEEK, so the server marks the message
// \Seen and it drops out of the next unseen search.
func (s *Session) FetchRaw(_ context.Context, uid uint32) ([]byte, error) {
	uidSet := imap.UIDSetNum(imap.UID(uid))

	bodySection := &imap.FetchItemBodySection{}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message UID %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body", uid)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("closing fetch for UID %d: %w", uid, err)
	}

	return raw, nil
}

// Close logs out and releases the connection.
func (s *Session) Close() error {
	s.stop()
	defer func() { _ = s.client.Close() }()

	if err := s.client.Logout().Wait(); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}
