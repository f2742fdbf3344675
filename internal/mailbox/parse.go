package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Legacy charsets common in marketing mail.
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// senderPattern captures the address inside angle brackets.
var senderPattern = regexp.MustCompile(`<(.+?)>`)

// ExtractSender returns the first value inside <...> in a From header,
// or the trimmed header itself when there are no angle brackets.
func ExtractSender(from string) string {
	if m := senderPattern.FindStringSubmatch(from); m != nil {
		return m[1]
	}
	return strings.TrimSpace(from)
}

// ParseMessage parses a raw RFC 5322 message into a RawMessage, keeping
// the first text/plain and first text/html inline parts. Attachments are
// skipped. A message in an unknown charset is still read, undecoded.
func ParseMessage(raw []byte) (*RawMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	defer mr.Close()

	msg := &RawMessage{
		From: mr.Header.Get("From"),
		Date: mr.Header.Get("Date"),
	}
	msg.Sender = ExtractSender(msg.From)

	if msg.Date != "" {
		if t, err := mr.Header.Date(); err == nil {
			msg.ReceivedAt = t
		}
	}

	topType, _, _ := mr.Header.ContentType()
	multipart := strings.HasPrefix(topType, "multipart/")

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A part in an unknown charset is read undecoded when the
			// reader hands it back, and skipped otherwise.
			if !message.IsUnknownCharset(err) {
				break
			}
			if part == nil {
				continue
			}
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/html"):
			if msg.HTMLBody == "" {
				msg.HTMLBody = string(body)
			}
		case strings.HasPrefix(contentType, "text/plain"), !multipart:
			// A single-part message of any non-HTML type is scanned as text.
			if msg.TextBody == "" {
				msg.TextBody = string(body)
			}
		}
	}

	return msg, nil
}
