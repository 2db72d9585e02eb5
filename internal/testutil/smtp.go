package testutil

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
)

// ReceivedMail is one message accepted by the test SMTP server.
type ReceivedMail struct {
	From string
	To   []string
	Data []byte
}

// MemoryBackend is an in-memory SMTP backend that records every accepted
// message. It accepts any credentials.
type MemoryBackend struct {
	mu       sync.Mutex
	messages []ReceivedMail
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// NewSession creates a new SMTP session.
func (b *MemoryBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &memorySession{backend: b}, nil
}

// Messages returns a copy of all received messages.
func (b *MemoryBackend) Messages() []ReceivedMail {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ReceivedMail, len(b.messages))
	copy(out, b.messages)
	return out
}

type memorySession struct {
	backend *MemoryBackend
	from    string
	to      []string
}

func (s *memorySession) AuthMechanism() (string, bool) {
	return "PLAIN", true
}

func (s *memorySession) Auth(username, password string) error {
	return nil
}

func (s *memorySession) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *memorySession) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *memorySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.messages = append(s.backend.messages, ReceivedMail{
		From: s.from,
		To:   s.to,
		Data: data,
	})
	return nil
}

func (s *memorySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *memorySession) Logout() error {
	return nil
}

// TestSMTPServer is an in-memory SMTP server for exercising the alert
// mailer.
type TestSMTPServer struct {
	Address string
	Backend *MemoryBackend

	server *smtp.Server
}

// NewTestSMTPServer starts a test SMTP server on a random local port. The
// server is shut down when the test finishes.
func NewTestSMTPServer(t *testing.T) *TestSMTPServer {
	t.Helper()

	be := NewMemoryBackend()
	s := smtp.NewServer(be)
	s.AllowInsecureAuth = true
	s.Domain = "localhost"

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		if err := s.Serve(listener); err != nil {
			t.Logf("SMTP server error: %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	t.Cleanup(func() { _ = s.Close() })

	return &TestSMTPServer{
		Address: listener.Addr().String(),
		Backend: be,
		server:  s,
	}
}
