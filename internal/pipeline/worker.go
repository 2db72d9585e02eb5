package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/vdavid/mailvault/internal/alert"
	"github.com/vdavid/mailvault/internal/imap"
	"github.com/vdavid/mailvault/internal/mail"
	"github.com/vdavid/mailvault/internal/sink"
	"github.com/vdavid/mailvault/internal/store"
)

// Error markers recorded for messages the pipeline gives up on.
// Downstream tooling matches on these exact strings.
const (
	retryExhaustedMessage = "retry much."
	storageErrorMessage   = "Storage error."
)

// MessageSource is the mailbox side a worker needs: raw fetch plus
// recovery between retries.
type MessageSource interface {
	FetchRaw(folder string, uid uint32) ([]byte, error)
	Reconnect() error
}

// Worker drains the work queue: it downloads each message, stores its
// artifacts through the configured sinks and records the outcome. Every
// worker owns its connection, so retries never disturb the others.
type Worker struct {
	source    MessageSource
	account   string
	recorder  *store.Recorder
	sinks     []sink.Sink
	observers []sink.Observer
	alerter   *alert.Mailer

	retryDelay  time.Duration
	maxAttempts int
}

// NewWorker creates a Worker for account's mailbox. alerter may be nil.
func NewWorker(source MessageSource, account string, recorder *store.Recorder, sinks []sink.Sink) *Worker {
	return &Worker{
		source:      source,
		account:     account,
		recorder:    recorder,
		sinks:       sinks,
		retryDelay:  DefaultRetryDelay,
		maxAttempts: DefaultMaxAttempts,
	}
}

// SetRetryDelay overrides the pause before each retry.
func (w *Worker) SetRetryDelay(d time.Duration) {
	w.retryDelay = d
}

// SetMaxAttempts overrides the number of download attempts per message.
func (w *Worker) SetMaxAttempts(n int) {
	w.maxAttempts = n
}

// AddObserver registers an observer notified after every stored artifact.
func (w *Worker) AddObserver(o sink.Observer) {
	w.observers = append(w.observers, o)
}

// SetAlerter installs the failure alert mailer.
func (w *Worker) SetAlerter(a *alert.Mailer) {
	w.alerter = a
}

// Run processes items until the queue closes or ctx is cancelled.
func (w *Worker) Run(ctx context.Context, queue <-chan WorkItem) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item, ok := <-queue:
			if !ok {
				return nil
			}
			w.process(ctx, item)
		}
	}
}

func (w *Worker) process(ctx context.Context, item WorkItem) {
	id := mail.NewIdentity(w.account, item.Folder, item.UID)

	raw, err := w.fetchWithRetry(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		kind, message := imap.Classify(err)
		if kind == imap.FailureTransient {
			message = retryExhaustedMessage
			if w.alerter != nil {
				if alertErr := w.alerter.DownloadFailed(id.User, id.Box, id.UID, err); alertErr != nil {
					log.Printf("Warning: failed to send failure alert: %v", alertErr)
				}
			}
		}
		w.recordError(ctx, id, message)
		return
	}

	message, err := mail.Parse(w.account, item.Folder, item.UID, raw)
	if err != nil {
		log.Printf("Failed to parse %s/%s UID %d: %v", id.User, id.Box, id.UID, err)
		w.recordError(ctx, id, err.Error())
		return
	}

	if err := w.store(ctx, message); err != nil {
		log.Printf("Failed to store %s/%s UID %d: %v", id.User, id.Box, id.UID, err)
		w.recordError(ctx, id, storageErrorMessage)
		return
	}
	log.Printf("Stored %s/%s UID %d (%d artifacts)", id.User, id.Box, id.UID, len(message.Artifacts()))
}

// fetchWithRetry downloads one message. Transient failures trigger up to
// maxAttempts fetches, each retry preceded by a pause and a fresh
// connection. Fatal failures return immediately.
func (w *Worker) fetchWithRetry(ctx context.Context, item WorkItem) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		raw, err := w.source.FetchRaw(item.Folder, item.UID)
		if err == nil {
			return raw, nil
		}
		kind, _ := imap.Classify(err)
		if kind == imap.FailureFatal {
			return nil, err
		}
		lastErr = err

		log.Printf("Transient failure fetching %s UID %d (attempt %d/%d): %v",
			item.Folder, item.UID, attempt, w.maxAttempts, err)
		if attempt == w.maxAttempts {
			break
		}
		if !sleepContext(ctx, w.retryDelay) {
			return nil, ctx.Err()
		}
		if rerr := w.source.Reconnect(); rerr != nil {
			log.Printf("Failed to reconnect after fetch failure: %v", rerr)
		}
	}
	return nil, lastErr
}

// store writes the summary, then every artifact to every sink, recording
// one file record per (artifact, sink) pair and notifying observers.
func (w *Worker) store(ctx context.Context, m *mail.Message) error {
	if err := w.recorder.UpsertSummary(ctx, store.Summary{
		User:         m.Identity.User,
		Box:          m.Identity.Box,
		UID:          m.Identity.UID,
		Subject:      m.Subject,
		Sender:       m.Sender,
		Recipients:   m.Recipients,
		CarbonCopies: m.CarbonCopies,
		SendTime:     m.SendTime,
		RecvTime:     m.RecvTime,
	}); err != nil {
		return err
	}

	for _, artifact := range m.Artifacts() {
		for _, s := range w.sinks {
			point, err := s.Write(ctx, m.Identity, artifact, m.SendTime)
			if err != nil {
				return err
			}
			event := sink.ArtifactEvent{
				Identity:     m.Identity,
				Fogname:      artifact.Fogname,
				OriginalName: artifact.OriginalName,
				StorageType:  s.Name(),
				StoragePoint: point,
			}
			if err := w.recorder.UpsertFileRecord(ctx, store.FileRecord{
				User:         m.Identity.User,
				Box:          m.Identity.Box,
				UID:          m.Identity.UID,
				Fogname:      event.Fogname,
				OriginalName: event.OriginalName,
				StorageType:  event.StorageType,
				StoragePoint: event.StoragePoint,
			}); err != nil {
				return err
			}
			for _, o := range w.observers {
				if err := o.ArtifactStored(ctx, event); err != nil {
					log.Printf("Warning: artifact observer failed for %s: %v", event.Fogname, err)
				}
			}
		}
	}
	return nil
}

func (w *Worker) recordError(ctx context.Context, id mail.Identity, message string) {
	err := w.recorder.UpsertError(ctx, store.ErrorRecord{
		User:    id.User,
		Box:     id.Box,
		UID:     id.UID,
		Message: message,
	})
	if err != nil {
		log.Printf("Failed to record download error for %s/%s UID %d: %v", id.User, id.Box, id.UID, err)
	}
}
