package store

import (
	"context"
	"fmt"
	"log"
)

// SyncRecords copies metadata rows from src to dst, in either direction.
// For every (user, box) group present in src it looks up dst's highest
// recorded UID and copies only the strictly newer summaries and file
// records. Error records carry no ordering, so they are copied wholesale;
// the REPLACE-based upserts make that idempotent.
func SyncRecords(ctx context.Context, src, dst Backend) error {
	srcMarks, err := src.HighWaterMarks(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect source records: %w", err)
	}
	dstMarks, err := dst.HighWaterMarks(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect destination records: %w", err)
	}

	watermark := make(map[[2]string]uint32, len(dstMarks))
	for _, mark := range dstMarks {
		watermark[[2]string{mark.User, mark.Box}] = mark.MaxUID
	}

	var copiedSummaries, copiedFiles int
	for _, group := range srcMarks {
		since := watermark[[2]string{group.User, group.Box}]
		if since >= group.MaxUID {
			continue
		}

		summaries, err := src.SummariesAbove(ctx, group.User, group.Box, since)
		if err != nil {
			return fmt.Errorf("failed to read summaries for %s/%s: %w", group.User, group.Box, err)
		}
		for _, s := range summaries {
			if err := dst.UpsertSummary(ctx, s); err != nil {
				return fmt.Errorf("failed to copy summary %s/%s UID %d: %w", s.User, s.Box, s.UID, err)
			}
			copiedSummaries++
		}

		files, err := src.FileRecordsAbove(ctx, group.User, group.Box, since)
		if err != nil {
			return fmt.Errorf("failed to read file records for %s/%s: %w", group.User, group.Box, err)
		}
		for _, f := range files {
			if err := dst.UpsertFileRecord(ctx, f); err != nil {
				return fmt.Errorf("failed to copy file record %s: %w", f.Fogname, err)
			}
			copiedFiles++
		}
	}

	errRecords, err := src.Errors(ctx)
	if err != nil {
		return fmt.Errorf("failed to read error records: %w", err)
	}
	for _, e := range errRecords {
		if err := dst.UpsertError(ctx, e); err != nil {
			return fmt.Errorf("failed to copy error record %s/%s UID %d: %w", e.User, e.Box, e.UID, err)
		}
	}

	log.Printf("Synced %d summaries, %d file records, %d error records", copiedSummaries, copiedFiles, len(errRecords))
	return nil
}
