package imap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdavid/mailvault/internal/testutil"
)

const rawTestMessage = "From: bob@example.org\r\n" +
	"To: alice@example.com\r\n" +
	"Subject: integration\r\n" +
	"Date: Mon, 02 Jan 2023 10:00:00 +0000\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"A short message.\r\n"

func dialTestMailbox(t *testing.T) (*testutil.TestIMAPServer, *Mailbox) {
	t.Helper()

	server := testutil.NewTestIMAPServer(t)
	mailbox, err := DialMailbox(server.Address, server.Username(), server.Password(), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mailbox.Logout() })
	return server, mailbox
}

func TestMailboxSearchUIDs(t *testing.T) {
	server, mailbox := dialTestMailbox(t)
	uid := server.AddRawMessage(t, "INBOX", []byte(rawTestMessage))

	uids, err := mailbox.SearchUIDs("INBOX", 1, 0)
	require.NoError(t, err)
	assert.Contains(t, uids, uid)
}

func TestMailboxFetchRaw(t *testing.T) {
	server, mailbox := dialTestMailbox(t)
	uid := server.AddRawMessage(t, "INBOX", []byte(rawTestMessage))

	raw, err := mailbox.FetchRaw("INBOX", uid)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: integration")
	assert.Contains(t, string(raw), "A short message.")
}

func TestMailboxFetchRawUnknownUID(t *testing.T) {
	_, mailbox := dialTestMailbox(t)

	_, err := mailbox.FetchRaw("INBOX", 99999)
	assert.Error(t, err)
}

func TestMailboxReconnect(t *testing.T) {
	server, mailbox := dialTestMailbox(t)
	uid := server.AddRawMessage(t, "INBOX", []byte(rawTestMessage))

	require.NoError(t, mailbox.Reconnect())

	raw, err := mailbox.FetchRaw("INBOX", uid)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestScanUIDsAgainstServer(t *testing.T) {
	server, mailbox := dialTestMailbox(t)
	uid := server.AddRawMessage(t, "INBOX", []byte(rawTestMessage))

	uids, err := ScanUIDs(mailbox, "INBOX", 1, 0, DefaultScanPageSize)
	require.NoError(t, err)
	assert.Contains(t, uids, uid)
}
