package mailbox

import (
	"errors"
	"fmt"
	"time"
)

// RawMessage holds the parts of one fetched message that link extraction
// needs. It lives only for the duration of a poll cycle.
type RawMessage struct {
	UID uint32

	// From is the raw From header; Sender is the bare address taken from it.
	From   string
	Sender string

	// Date is the raw Date header as delivered. ReceivedAt is the same
	// instant parsed, or zero when the header is missing or malformed.
	Date       string
	ReceivedAt time.Time

	// TextBody and HTMLBody are the first text/plain and text/html
	// inline parts found while walking the MIME tree.
	TextBody string
	HTMLBody string
}

// ConnectError indicates the mailbox could not be reached or refused the
// credentials. The current poll cycle is abandoned; the next one retries.
type ConnectError struct {
	Addr    string
	Auth    bool
	Message string
	Err     error
}

func (e *ConnectError) Error() string {
	kind := "connect"
	if e.Auth {
		kind = "auth"
	}
	return fmt.Sprintf("mailbox %s error (%s): %s", kind, e.Addr, e.Message)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsConnectError reports whether err (or any error in its chain) is a
// ConnectError.
func IsConnectError(err error) bool {
	var connErr *ConnectError
	return errors.As(err, &connErr)
}
