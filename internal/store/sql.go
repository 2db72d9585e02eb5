package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// sqlBackend implements Backend on top of a sqlx handle. Both concrete
// backends share it; the SQLite one adds a write-serialization guard.
type sqlBackend struct {
	db *sqlx.DB
	// guard wraps every statement; backends use it to serialize access
	// and retry on engine-level busy errors. nil means run directly.
	guard func(op func() error) error
}

func (b *sqlBackend) do(op func() error) error {
	if b.guard == nil {
		return op()
	}
	return b.guard(op)
}

// createTables creates the three record tables if they are missing.
func (b *sqlBackend) createTables(ctx context.Context) error {
	for _, ddl := range schema {
		ddl := ddl
		err := b.do(func() error {
			_, execErr := b.db.ExecContext(ctx, ddl)
			return execErr
		})
		if err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (b *sqlBackend) UpsertSummary(ctx context.Context, s Summary) error {
	err := b.do(func() error {
		_, execErr := b.db.ExecContext(ctx, upsertSummarySQL,
			s.User, s.Box, s.UID, s.Subject, s.Sender, s.Recipients, s.CarbonCopies,
			s.SendTime.Format(timeFormat), s.RecvTime.Format(timeFormat))
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

func (b *sqlBackend) UpsertFileRecord(ctx context.Context, r FileRecord) error {
	err := b.do(func() error {
		_, execErr := b.db.ExecContext(ctx, upsertFileRecordSQL,
			r.User, r.Box, r.UID, r.Fogname, r.OriginalName, r.StorageType, r.StoragePoint)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to upsert file record: %w", err)
	}
	return nil
}

func (b *sqlBackend) UpsertError(ctx context.Context, e ErrorRecord) error {
	err := b.do(func() error {
		_, execErr := b.db.ExecContext(ctx, upsertErrorSQL, e.User, e.Box, e.UID, e.Message)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to upsert error record: %w", err)
	}
	return nil
}

func (b *sqlBackend) RecordedUIDs(ctx context.Context, user, box string) ([]uint32, error) {
	var uids []uint32
	err := b.do(func() error {
		return b.db.SelectContext(ctx, &uids, recordedUIDsSQL, user, box)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read recorded UIDs: %w", err)
	}
	return uids, nil
}

func (b *sqlBackend) HighWaterMarks(ctx context.Context) ([]HighWaterMark, error) {
	var marks []HighWaterMark
	err := b.do(func() error {
		return b.db.SelectContext(ctx, &marks, highWaterMarksSQL)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read high water marks: %w", err)
	}
	return marks, nil
}

// summaryRow mirrors Summary with the DATETIME columns as stored text.
type summaryRow struct {
	User         string `db:"user"`
	Box          string `db:"box"`
	UID          uint32 `db:"uid"`
	Subject      string `db:"subject"`
	Sender       string `db:"sender"`
	Recipients   string `db:"recipients"`
	CarbonCopies string `db:"cc"`
	SendTime     string `db:"sendtime"`
	RecvTime     string `db:"recvtime"`
}

func (b *sqlBackend) SummariesAbove(ctx context.Context, user, box string, uid uint32) ([]Summary, error) {
	var rows []summaryRow
	err := b.do(func() error {
		return b.db.SelectContext(ctx, &rows, summariesAboveSQL, user, box, uid)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read summaries: %w", err)
	}

	summaries := make([]Summary, 0, len(rows))
	for _, row := range rows {
		sendTime, err := parseStoredTime(row.SendTime)
		if err != nil {
			return nil, err
		}
		recvTime, err := parseStoredTime(row.RecvTime)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, Summary{
			User:         row.User,
			Box:          row.Box,
			UID:          row.UID,
			Subject:      row.Subject,
			Sender:       row.Sender,
			Recipients:   row.Recipients,
			CarbonCopies: row.CarbonCopies,
			SendTime:     sendTime,
			RecvTime:     recvTime,
		})
	}
	return summaries, nil
}

func (b *sqlBackend) FileRecordsAbove(ctx context.Context, user, box string, uid uint32) ([]FileRecord, error) {
	var records []FileRecord
	err := b.do(func() error {
		return b.db.SelectContext(ctx, &records, fileRecordsAboveSQL, user, box, uid)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read file records: %w", err)
	}
	return records, nil
}

func (b *sqlBackend) Errors(ctx context.Context) ([]ErrorRecord, error) {
	var records []ErrorRecord
	err := b.do(func() error {
		return b.db.SelectContext(ctx, &records, errorsSQL)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read error records: %w", err)
	}
	return records, nil
}

func (b *sqlBackend) Close() error {
	return b.db.Close()
}

func parseStoredTime(value string) (time.Time, error) {
	t, err := time.Parse(timeFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", value, err)
	}
	return t, nil
}
