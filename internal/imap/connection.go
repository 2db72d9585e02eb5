package imap

import (
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
)

// dialTimeout bounds the TCP connect to the IMAP server.
const dialTimeout = 5 * time.Second

// Connect connects to the IMAP server.
// useTLS: true for production (TLS on port 993), false for tests (non-TLS).
func Connect(server string, useTLS bool) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: dialTimeout,
	}

	if useTLS {
		c, err := client.DialWithDialerTLS(dialer, server, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	c, err := client.DialWithDialer(dialer, server)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return c, nil
}

// Login authenticates with the IMAP server.
func Login(c *client.Client, username, password string) error {
	if err := c.Login(username, password); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	return nil
}
