package mailbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// crlf joins lines into an RFC 5322 message.
func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestExtractSender(t *testing.T) {
	assert.Equal(t, "jane@x.com", ExtractSender("Jane <jane@x.com>"))
	assert.Equal(t, "jane@x.com", ExtractSender(`"Doe, Jane" <jane@x.com>`))
	assert.Equal(t, "jane@x.com", ExtractSender("  jane@x.com "))
	assert.Equal(t, "", ExtractSender(""))
}

func TestParseMessage_MultipartAlternative(t *testing.T) {
	raw := crlf(
		"From: Jane <jane@x.com>",
		"To: feed@example.com",
		"Subject: hello",
		"Date: Tue, 14 Oct 2025 09:30:00 +0200",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"check this out https://news.example.com/story?utm=1",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		`<p><a href="https://news.example.com/story?utm=1">story</a></p>`,
		"--b1--",
		"",
	)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, "Jane <jane@x.com>", msg.From)
	assert.Equal(t, "jane@x.com", msg.Sender)
	assert.Equal(t, "Tue, 14 Oct 2025 09:30:00 +0200", msg.Date)
	assert.True(t, msg.ReceivedAt.Equal(time.Date(2025, 10, 14, 7, 30, 0, 0, time.UTC)))
	assert.Contains(t, msg.TextBody, "https://news.example.com/story?utm=1")
	assert.Contains(t, msg.HTMLBody, `<a href="https://news.example.com/story?utm=1">`)
}

func TestParseMessage_UnknownCharsetPartDoesNotHideLaterParts(t *testing.T) {
	raw := crlf(
		"From: Jane <jane@x.com>",
		"Date: Tue, 14 Oct 2025 09:30:00 +0200",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=x-no-such-charset",
		"",
		"plain text nobody can decode",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		`<p><a href="https://news.example.com/kept">story</a></p>`,
		"--b1--",
		"",
	)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Contains(t, msg.HTMLBody, "https://news.example.com/kept")
}

func TestParseMessage_UnparseableDateKeepsRawHeader(t *testing.T) {
	raw := crlf(
		"From: jane@x.com",
		"Date: 14/10/2025 09:30",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"https://a.com/x",
		"",
	)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "14/10/2025 09:30", msg.Date)
	assert.True(t, msg.ReceivedAt.IsZero())
}

func TestParseMessage_SkipsAttachmentsAndKeepsFirstParts(t *testing.T) {
	raw := crlf(
		"From: sender@example.com",
		"Date: Tue, 14 Oct 2025 09:30:00 +0000",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		"Content-Type: text/plain",
		`Content-Disposition: attachment; filename="links.txt"`,
		"",
		"https://attachment.example.com/should-not-appear",
		"--outer",
		`Content-Type: multipart/alternative; boundary="inner"`,
		"",
		"--inner",
		"Content-Type: text/plain",
		"",
		"first https://first.example.com/a",
		"--inner",
		"Content-Type: text/html",
		"",
		"<p>first html</p>",
		"--inner--",
		"--outer",
		"Content-Type: text/plain",
		"",
		"second https://second.example.com/b",
		"--outer--",
		"",
	)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, "sender@example.com", msg.Sender)
	assert.Contains(t, msg.TextBody, "https://first.example.com/a")
	assert.NotContains(t, msg.TextBody, "attachment.example.com")
	assert.NotContains(t, msg.TextBody, "second.example.com")
	assert.Equal(t, "<p>first html</p>", msg.HTMLBody)
}

func TestParseMessage_SinglePartHTML(t *testing.T) {
	raw := crlf(
		"From: News <news@example.com>",
		"Date: Wed, 15 Oct 2025 12:00:00 +0000",
		"Content-Type: text/html; charset=utf-8",
		"",
		`<a href="https://example.com/x">x</a>`,
	)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Empty(t, msg.TextBody)
	assert.Contains(t, msg.HTMLBody, "https://example.com/x")
}

func TestParseMessage_QuotedPrintableWindows1252(t *testing.T) {
	raw := crlf(
		"From: a@example.com",
		"Date: Wed, 15 Oct 2025 12:00:00 +0000",
		"Content-Type: text/plain; charset=windows-1252",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"caf=E9 https://example.com/menu",
	)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "café https://example.com/menu", strings.TrimSpace(msg.TextBody))
}

func TestParseMessage_MissingDate(t *testing.T) {
	raw := crlf(
		"From: a@example.com",
		"Content-Type: text/plain",
		"",
		"https://example.com/undated",
	)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Empty(t, msg.Date)
	assert.True(t, msg.ReceivedAt.IsZero())
}

func TestConnectError(t *testing.T) {
	err := &ConnectError{Addr: "imap.example.com:993", Auth: true, Message: "bad password"}
	assert.True(t, IsConnectError(err))
	assert.Contains(t, err.Error(), "auth error")
	assert.False(t, IsConnectError(assert.AnError))
}
