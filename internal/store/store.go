package store

import (
	"context"
	"log"
	"time"
)

// timeFormat is the DATETIME layout shared by both backends, so rows can
// be copied between them verbatim.
const timeFormat = "2006-01-02 15:04:05"

// Summary is one row of the mail summary table: the parsed header fields
// of a single message, keyed by (user, box, uid).
type Summary struct {
	User         string `db:"user"`
	Box          string `db:"box"`
	UID          uint32 `db:"uid"`
	Subject      string `db:"subject"`
	Sender       string `db:"sender"`
	Recipients   string `db:"recipients"`
	CarbonCopies string `db:"cc"`
	SendTime     time.Time
	RecvTime     time.Time
}

// FileRecord locates one stored artifact (message body or attachment),
// keyed by (storage_type, storage_point, fogname).
type FileRecord struct {
	User         string `db:"user"`
	Box          string `db:"box"`
	UID          uint32 `db:"uid"`
	Fogname      string `db:"fogname"`
	OriginalName string `db:"original_name"`
	StorageType  string `db:"storage_type"`
	StoragePoint string `db:"storage_point"`
}

// ErrorRecord is one unrecoverable download failure, keyed by (user, box,
// uid) and overwritten on repeated failure of the same message.
type ErrorRecord struct {
	User    string `db:"user"`
	Box     string `db:"box"`
	UID     uint32 `db:"uid"`
	Message string `db:"error_msg"`
}

// HighWaterMark is the highest recorded UID for one (user, box) group.
type HighWaterMark struct {
	User   string `db:"user"`
	Box    string `db:"box"`
	MaxUID uint32 `db:"max_uid"`
}

// Backend is one metadata database. All writes are upserts: re-running the
// pipeline against the same identity replaces rows instead of failing.
type Backend interface {
	UpsertSummary(ctx context.Context, s Summary) error
	UpsertFileRecord(ctx context.Context, r FileRecord) error
	UpsertError(ctx context.Context, e ErrorRecord) error

	RecordedUIDs(ctx context.Context, user, box string) ([]uint32, error)

	// Reconciliation support (see SyncRecords).
	HighWaterMarks(ctx context.Context) ([]HighWaterMark, error)
	SummariesAbove(ctx context.Context, user, box string, uid uint32) ([]Summary, error)
	FileRecordsAbove(ctx context.Context, user, box string, uid uint32) ([]FileRecord, error)
	Errors(ctx context.Context) ([]ErrorRecord, error)

	Close() error
}

// Recorder writes every record to the local backend and mirrors it to the
// remote one when configured. The local write is the source of truth: its
// failure fails the call. The remote mirror is best-effort; a failed mirror
// write is logged and the call still succeeds.
type Recorder struct {
	local  Backend
	remote Backend
}

// NewRecorder creates a Recorder. remote may be nil.
func NewRecorder(local, remote Backend) *Recorder {
	return &Recorder{local: local, remote: remote}
}

// UpsertSummary records one mail summary.
func (r *Recorder) UpsertSummary(ctx context.Context, s Summary) error {
	if err := r.local.UpsertSummary(ctx, s); err != nil {
		return err
	}
	if r.remote != nil {
		if err := r.remote.UpsertSummary(ctx, s); err != nil {
			log.Printf("Warning: failed to mirror summary for %s/%s UID %d: %v", s.User, s.Box, s.UID, err)
		}
	}
	return nil
}

// UpsertFileRecord records one stored-artifact location.
func (r *Recorder) UpsertFileRecord(ctx context.Context, rec FileRecord) error {
	if err := r.local.UpsertFileRecord(ctx, rec); err != nil {
		return err
	}
	if r.remote != nil {
		if err := r.remote.UpsertFileRecord(ctx, rec); err != nil {
			log.Printf("Warning: failed to mirror file record %s: %v", rec.Fogname, err)
		}
	}
	return nil
}

// UpsertError records one unrecoverable failure.
func (r *Recorder) UpsertError(ctx context.Context, e ErrorRecord) error {
	if err := r.local.UpsertError(ctx, e); err != nil {
		return err
	}
	if r.remote != nil {
		if err := r.remote.UpsertError(ctx, e); err != nil {
			log.Printf("Warning: failed to mirror error record for %s/%s UID %d: %v", e.User, e.Box, e.UID, err)
		}
	}
	return nil
}

// RecordedUIDs returns the UIDs already recorded for one (user, box).
// Only the local backend is consulted; the mirror is not authoritative
// for what has been downloaded.
func (r *Recorder) RecordedUIDs(ctx context.Context, user, box string) ([]uint32, error) {
	return r.local.RecordedUIDs(ctx, user, box)
}

// Close closes both backends.
func (r *Recorder) Close() error {
	err := r.local.Close()
	if r.remote != nil {
		if remoteErr := r.remote.Close(); err == nil {
			err = remoteErr
		}
	}
	return err
}
