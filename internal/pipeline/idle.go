package pipeline

import (
	"context"
	"log"
	"time"

	idle "github.com/emersion/go-imap-idle"
	imapclient "github.com/emersion/go-imap/client"

	"github.com/vdavid/mailvault/internal/imap"
)

// idleFallbackPoll is the polling interval IDLE falls back to when the
// server does not support the extension.
const idleFallbackPoll = 30 * time.Second

// IdleWatcher holds a dedicated connection in IMAP IDLE and nudges the
// producer whenever the server reports mailbox activity, so new mail is
// picked up before the next scheduled scan.
type IdleWatcher struct {
	mailbox *imap.Mailbox
	folder  string
	nudge   chan struct{}
}

// NewIdleWatcher creates a watcher on mailbox, which must be a dedicated
// connection: IDLE occupies it completely.
func NewIdleWatcher(mailbox *imap.Mailbox, folder string) *IdleWatcher {
	return &IdleWatcher{
		mailbox: mailbox,
		folder:  folder,
		nudge:   make(chan struct{}, 1),
	}
}

// Nudge returns the channel to hand to Producer.SetNudge.
func (w *IdleWatcher) Nudge() <-chan struct{} {
	return w.nudge
}

// Run idles until ctx is cancelled. Errors end the watcher; the producer
// keeps polling on its own schedule regardless.
func (w *IdleWatcher) Run(ctx context.Context) error {
	client := w.mailbox.Client()
	if _, err := client.Select(w.folder, true); err != nil {
		return err
	}

	idleClient := idle.NewClient(client)

	updates := make(chan imapclient.Update, 10)
	client.Updates = updates

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- idleClient.IdleWithFallback(stop, idleFallbackPoll)
	}()

	for {
		select {
		case <-ctx.Done():
			close(stop)
			return nil
		case err := <-done:
			if err != nil {
				log.Printf("IDLE watcher for %s ended: %v", w.folder, err)
			}
			return err
		case update := <-updates:
			if _, ok := update.(*imapclient.MailboxUpdate); !ok {
				continue
			}
			select {
			case w.nudge <- struct{}{}:
			default:
			}
		}
	}
}
