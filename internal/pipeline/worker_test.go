package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdavid/mailvault/internal/mail"
	"github.com/vdavid/mailvault/internal/sink"
	"github.com/vdavid/mailvault/internal/store"
)

const rawTestMessage = "From: bob@example.org\r\n" +
	"To: alice@example.com\r\n" +
	"Subject: hello\r\n" +
	"Date: Mon, 02 Jan 2023 10:00:00 +0000\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"A short message.\r\n"

// scriptedSource serves FetchRaw from a list of canned outcomes, then
// succeeds forever.
type scriptedSource struct {
	mu         sync.Mutex
	failures   []error
	fetches    int
	reconnects int
}

func (s *scriptedSource) FetchRaw(folder string, uid uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}
	return []byte(rawTestMessage), nil
}

func (s *scriptedSource) Reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

// memBackend is an in-memory store.Backend for observing worker writes.
type memBackend struct {
	mu        sync.Mutex
	summaries []store.Summary
	files     []store.FileRecord
	errs      []store.ErrorRecord
}

func (m *memBackend) UpsertSummary(ctx context.Context, s store.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, have := range m.summaries {
		if have.User == s.User && have.Box == s.Box && have.UID == s.UID {
			m.summaries[i] = s
			return nil
		}
	}
	m.summaries = append(m.summaries, s)
	return nil
}

func (m *memBackend) UpsertFileRecord(ctx context.Context, r store.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, have := range m.files {
		if have.StorageType == r.StorageType && have.StoragePoint == r.StoragePoint && have.Fogname == r.Fogname {
			m.files[i] = r
			return nil
		}
	}
	m.files = append(m.files, r)
	return nil
}

func (m *memBackend) UpsertError(ctx context.Context, e store.ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, have := range m.errs {
		if have.User == e.User && have.Box == e.Box && have.UID == e.UID {
			m.errs[i] = e
			return nil
		}
	}
	m.errs = append(m.errs, e)
	return nil
}

func (m *memBackend) RecordedUIDs(ctx context.Context, user, box string) ([]uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var uids []uint32
	for _, s := range m.summaries {
		if s.User == user && s.Box == box {
			uids = append(uids, s.UID)
		}
	}
	return uids, nil
}

func (m *memBackend) HighWaterMarks(context.Context) ([]store.HighWaterMark, error) { return nil, nil }
func (m *memBackend) SummariesAbove(context.Context, string, string, uint32) ([]store.Summary, error) {
	return nil, nil
}
func (m *memBackend) FileRecordsAbove(context.Context, string, string, uint32) ([]store.FileRecord, error) {
	return nil, nil
}
func (m *memBackend) Errors(context.Context) ([]store.ErrorRecord, error) { return nil, nil }
func (m *memBackend) Close() error                                        { return nil }

// memSink collects written artifacts, optionally failing every write.
type memSink struct {
	mu       sync.Mutex
	name     string
	fail     bool
	written  []mail.Artifact
	sendDays []time.Time
}

func (s *memSink) Name() string { return s.name }

func (s *memSink) Write(ctx context.Context, id mail.Identity, artifact mail.Artifact, sentAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", errors.New("disk full")
	}
	s.written = append(s.written, artifact)
	s.sendDays = append(s.sendDays, sentAt)
	return "/stored", nil
}

func newTestWorker(source MessageSource, backend *memBackend, sinks ...sink.Sink) *Worker {
	w := NewWorker(source, "alice@example.com", store.NewRecorder(backend, nil), sinks)
	w.SetRetryDelay(0)
	return w
}

func TestWorkerStoresMessage(t *testing.T) {
	source := &scriptedSource{}
	backend := &memBackend{}
	dest := &memSink{name: "file_system"}
	w := newTestWorker(source, backend, dest)

	w.process(context.Background(), WorkItem{Folder: "INBOX", UID: 42})

	require.Len(t, backend.summaries, 1)
	assert.Equal(t, "alice", backend.summaries[0].User)
	assert.Equal(t, uint32(42), backend.summaries[0].UID)
	assert.Equal(t, "hello", backend.summaries[0].Subject)

	require.Len(t, backend.files, 1)
	assert.Equal(t, "alice_INBOX_42.context", backend.files[0].Fogname)
	assert.Equal(t, "file_system", backend.files[0].StorageType)
	assert.Equal(t, "/stored", backend.files[0].StoragePoint)

	assert.Empty(t, backend.errs)
	require.Len(t, dest.written, 1)
	require.Len(t, dest.sendDays, 1)
	assert.Equal(t, time.Date(2023, 1, 2, 10, 0, 0, 0, time.UTC), dest.sendDays[0].UTC())
}

func TestWorkerRecoversFromTransientFailures(t *testing.T) {
	source := &scriptedSource{failures: []error{
		errors.New("unexpected EOF"),
		errors.New("read tcp: connection reset by peer"),
	}}
	backend := &memBackend{}
	w := newTestWorker(source, backend, &memSink{name: "file_system"})

	w.process(context.Background(), WorkItem{Folder: "INBOX", UID: 1})

	assert.Equal(t, 3, source.fetches)
	assert.Equal(t, 2, source.reconnects)
	assert.Len(t, backend.summaries, 1)
	assert.Empty(t, backend.errs)
}

func TestWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	failures := make([]error, 10)
	for i := range failures {
		failures[i] = errors.New("unexpected EOF")
	}
	source := &scriptedSource{failures: failures}
	backend := &memBackend{}
	w := newTestWorker(source, backend, &memSink{name: "file_system"})

	w.process(context.Background(), WorkItem{Folder: "INBOX", UID: 1})

	assert.Equal(t, DefaultMaxAttempts, source.fetches)
	assert.Equal(t, DefaultMaxAttempts-1, source.reconnects)

	require.Len(t, backend.errs, 1)
	assert.Equal(t, "retry much.", backend.errs[0].Message)
	assert.Equal(t, uint32(1), backend.errs[0].UID)
	assert.Empty(t, backend.summaries)
}

func TestWorkerFatalErrorShortCircuits(t *testing.T) {
	source := &scriptedSource{failures: []error{
		fmt.Errorf("NO no such message"),
	}}
	backend := &memBackend{}
	w := newTestWorker(source, backend, &memSink{name: "file_system"})

	w.process(context.Background(), WorkItem{Folder: "INBOX", UID: 1})

	assert.Equal(t, 1, source.fetches)
	assert.Equal(t, 0, source.reconnects)

	require.Len(t, backend.errs, 1)
	assert.Contains(t, backend.errs[0].Message, "no such message")
}

func TestWorkerRecordsStorageError(t *testing.T) {
	source := &scriptedSource{}
	backend := &memBackend{}
	w := newTestWorker(source, backend, &memSink{name: "file_system", fail: true})

	w.process(context.Background(), WorkItem{Folder: "INBOX", UID: 1})

	require.Len(t, backend.errs, 1)
	assert.Equal(t, "Storage error.", backend.errs[0].Message)
}

func TestWorkerWritesToEverySink(t *testing.T) {
	source := &scriptedSource{}
	backend := &memBackend{}
	first := &memSink{name: "file_system"}
	second := &memSink{name: "s3"}
	w := newTestWorker(source, backend, first, second)

	w.process(context.Background(), WorkItem{Folder: "INBOX", UID: 1})

	assert.Len(t, first.written, 1)
	assert.Len(t, second.written, 1)
	assert.Len(t, backend.files, 2)
}

func TestWorkerNotifiesObservers(t *testing.T) {
	source := &scriptedSource{}
	backend := &memBackend{}
	w := newTestWorker(source, backend, &memSink{name: "file_system"})

	var events []sink.ArtifactEvent
	w.AddObserver(sink.ObserverFunc(func(ctx context.Context, event sink.ArtifactEvent) error {
		events = append(events, event)
		return nil
	}))

	w.process(context.Background(), WorkItem{Folder: "INBOX", UID: 5})

	require.Len(t, events, 1)
	assert.Equal(t, "alice_INBOX_5.context", events[0].Fogname)
	assert.Equal(t, "file_system", events[0].StorageType)
}

func TestWorkerObserverFailureDoesNotAbort(t *testing.T) {
	source := &scriptedSource{}
	backend := &memBackend{}
	w := newTestWorker(source, backend, &memSink{name: "file_system"})
	w.AddObserver(sink.ObserverFunc(func(context.Context, sink.ArtifactEvent) error {
		return errors.New("redis down")
	}))

	w.process(context.Background(), WorkItem{Folder: "INBOX", UID: 1})

	assert.Len(t, backend.summaries, 1)
	assert.Empty(t, backend.errs)
}

func TestWorkerDrainsClosedQueue(t *testing.T) {
	source := &scriptedSource{}
	backend := &memBackend{}
	w := newTestWorker(source, backend, &memSink{name: "file_system"})

	queue := make(chan WorkItem, 3)
	queue <- WorkItem{Folder: "INBOX", UID: 1}
	queue <- WorkItem{Folder: "INBOX", UID: 2}
	close(queue)

	require.NoError(t, w.Run(context.Background(), queue))
	assert.Len(t, backend.summaries, 2)
}
