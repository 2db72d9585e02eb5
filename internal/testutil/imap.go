package testutil

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer is an in-memory IMAP server for exercising the scanner
// and download pipeline. The memory backend creates one account with
// username "username" and password "password".
type TestIMAPServer struct {
	Server  *server.Server
	Address string
	Backend *memory.Backend
}

// Username is the account the in-memory backend provides.
func (s *TestIMAPServer) Username() string { return "username" }

// Password is the account's password.
func (s *TestIMAPServer) Password() string { return "password" }

// NewTestIMAPServer starts a test IMAP server on a random local port. The
// server is shut down when the test finishes.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	be := memory.New()
	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		if err := s.Serve(listener); err != nil {
			t.Logf("IMAP server error: %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	t.Cleanup(func() { _ = s.Close() })

	return &TestIMAPServer{
		Server:  s,
		Address: listener.Addr().String(),
		Backend: be,
	}
}

// Connect creates a logged-in client connection to the test server.
func (s *TestIMAPServer) Connect(t *testing.T) (*imapclient.Client, func()) {
	t.Helper()

	client, err := imapclient.Dial(s.Address)
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}
	if err := client.Login(s.Username(), s.Password()); err != nil {
		_ = client.Logout()
		t.Fatalf("Failed to login: %v", err)
	}
	return client, func() { _ = client.Logout() }
}

// EnsureFolder creates the folder when the backend does not have it yet.
func (s *TestIMAPServer) EnsureFolder(t *testing.T, name string) {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select(name, false); err == nil {
		return
	}
	if err := client.Create(name); err != nil {
		t.Fatalf("Failed to create folder %s: %v", name, err)
	}
}

// AddRawMessage appends a complete RFC 822 message to the folder and
// returns its UID.
func (s *TestIMAPServer) AddRawMessage(t *testing.T, folder string, raw []byte) uint32 {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if err := client.Append(folder, []string{imap.SeenFlag}, time.Now(), bytes.NewReader(raw)); err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}

	if _, err := client.Select(folder, true); err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}
	criteria := imap.NewSearchCriteria()
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(1, 0)
	criteria.Uid = seqSet
	uids, err := client.UidSearch(criteria)
	if err != nil {
		t.Fatalf("Failed to search for message: %v", err)
	}
	if len(uids) == 0 {
		t.Fatalf("Message not found after append")
	}

	max := uids[0]
	for _, uid := range uids[1:] {
		if uid > max {
			max = uid
		}
	}
	return max
}
