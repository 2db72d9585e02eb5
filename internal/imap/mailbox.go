package imap

import (
	"fmt"
	"io"
	"log"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
)

// Mailbox is one authenticated IMAP session. A Mailbox is owned by exactly
// one goroutine; sessions are never shared across workers.
type Mailbox struct {
	server   string
	username string
	password string
	useTLS   bool

	client   *imapclient.Client
	selected string
}

// DialMailbox connects and logs in a new session.
func DialMailbox(server, username, password string, useTLS bool) (*Mailbox, error) {
	c, err := Connect(server, useTLS)
	if err != nil {
		return nil, err
	}

	if err := Login(c, username, password); err != nil {
		_ = c.Logout()
		return nil, err
	}

	log.Printf("Connected to IMAP server %s as %s", server, username)

	return &Mailbox{
		server:   server,
		username: username,
		password: password,
		useTLS:   useTLS,
		client:   c,
	}, nil
}

// Username returns the account the session is logged in as.
func (m *Mailbox) Username() string {
	return m.username
}

// Reconnect drops the current connection and establishes a fresh session.
// The previous connection is logged out on a best-effort basis; a stale
// server-side state is exactly what we are recovering from.
func (m *Mailbox) Reconnect() error {
	if m.client != nil {
		_ = m.client.Logout()
	}
	m.selected = ""

	c, err := Connect(m.server, m.useTLS)
	if err != nil {
		return fmt.Errorf("failed to reconnect: %w", err)
	}
	if err := Login(c, m.username, m.password); err != nil {
		_ = c.Logout()
		return fmt.Errorf("failed to reconnect: %w", err)
	}

	m.client = c
	log.Printf("Reconnected to IMAP server %s as %s", m.server, m.username)
	return nil
}

// Logout closes the session.
func (m *Mailbox) Logout() error {
	if m.client == nil {
		return nil
	}
	err := m.client.Logout()
	m.client = nil
	m.selected = ""
	return err
}

// selectFolder selects the folder if it is not already the active one.
func (m *Mailbox) selectFolder(folder string) error {
	if m.selected == folder {
		return nil
	}
	if _, err := m.client.Select(folder, true); err != nil {
		m.selected = ""
		return fmt.Errorf("failed to select folder %s: %w", folder, err)
	}
	m.selected = folder
	return nil
}

// SearchUIDs returns the UIDs present in folder within [start, end].
// end == 0 means "through the most recent message" (the protocol's "*").
func (m *Mailbox) SearchUIDs(folder string, start, end uint32) ([]uint32, error) {
	if err := m.selectFolder(folder); err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(start, end)

	criteria := imap.NewSearchCriteria()
	criteria.Uid = seqSet

	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search UIDs in folder %s: %w", folder, err)
	}
	return uids, nil
}

// FetchRaw fetches the full RFC 822 message bytes for one UID.
func (m *Mailbox) FetchRaw(folder string, uid uint32) ([]byte, error) {
	if err := m.selectFolder(folder); err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- m.client.UidFetch(seqSet, items, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("UID %d is invalid in folder %s", uid, folder)
	}

	bodyReader := msg.GetBody(section)
	if bodyReader == nil {
		return nil, fmt.Errorf("UID %d is invalid in folder %s", uid, folder)
	}

	raw, err := io.ReadAll(bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	return raw, nil
}

// Client exposes the underlying connection for single-purpose helpers
// (the IDLE watcher). Callers must not share it across goroutines.
func (m *Mailbox) Client() *imapclient.Client {
	return m.client
}
