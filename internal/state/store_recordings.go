package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const recordingColumns = `recording_guid, call_guid, recording_id, recording_date_ms,
    size_bytes, content_etag, status, retry_count, last_error, last_error_at_utc, last_processed_at_utc`

// UpsertRecording inserts a recording in the pending state or refreshes its
// size/fingerprint fields when they changed. Matching values are a no-op
// reported as Unchanged.
func (s *Store) UpsertRecording(ctx context.Context, guid, callGUID, recordingID string, dateMS int64, sizeBytes *int64, contentETag string) (UpsertResult, error) {
	ctx = ensureContext(ctx)

	var result UpsertResult
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin upsert tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var (
			existingSize sql.NullInt64
			existingETag sql.NullString
		)
		err = tx.QueryRowContext(ctx,
			`SELECT size_bytes, content_etag FROM recordings WHERE recording_guid = ?`, guid,
		).Scan(&existingSize, &existingETag)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO recordings (recording_guid, call_guid, recording_id, recording_date_ms, size_bytes, content_etag)
                 VALUES (?, ?, ?, ?, ?, ?)`,
				guid, callGUID, recordingID, dateMS, nullableInt64(sizeBytes), nullableString(contentETag),
			); err != nil {
				return fmt.Errorf("insert recording: %w", err)
			}
			result = Inserted
		case err != nil:
			return fmt.Errorf("lookup recording: %w", err)
		case sizeChanged(existingSize, sizeBytes) || existingETag.String != contentETag:
			if _, err := tx.ExecContext(ctx,
				`UPDATE recordings SET size_bytes = ?, content_etag = ? WHERE recording_guid = ?`,
				nullableInt64(sizeBytes), nullableString(contentETag), guid,
			); err != nil {
				return fmt.Errorf("update recording: %w", err)
			}
			result = Updated
		default:
			result = Unchanged
		}
		return tx.Commit()
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// MarkDownloaded records terminal success and clears the error fields.
// Quarantined rows are left untouched; marking an already downloaded row
// again is a harmless no-op re-write of the same outcome.
func (s *Store) MarkDownloaded(ctx context.Context, guid string, sizeBytes int64, contentETag string, at time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE recordings
         SET status = ?, size_bytes = ?, content_etag = ?, last_processed_at_utc = ?,
             last_error = NULL, last_error_at_utc = NULL
         WHERE recording_guid = ? AND status != ?`,
		StatusDownloaded, sizeBytes, nullableString(contentETag), formatTime(at),
		guid, StatusQuarantined,
	)
	if err != nil {
		return fmt.Errorf("mark downloaded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.explainMiss(ctx, guid)
	}
	return nil
}

// MarkFailedTransient increments the retry counter and returns the new
// value. The caller owns the retry ceiling; the store does not know it.
func (s *Store) MarkFailedTransient(ctx context.Context, guid, errorKey string, at time.Time) (int, error) {
	ctx = ensureContext(ctx)

	var newCount int
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transition tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var (
			current int
			status  string
		)
		err = tx.QueryRowContext(ctx, `SELECT retry_count, status FROM recordings WHERE recording_guid = ?`, guid).Scan(&current, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, guid)
		}
		if err != nil {
			return fmt.Errorf("lookup recording: %w", err)
		}
		if Status(status) == StatusQuarantined {
			newCount = current
			return tx.Commit()
		}

		newCount = current + 1
		if _, err := tx.ExecContext(ctx,
			`UPDATE recordings SET status = ?, retry_count = ?, last_error = ?, last_error_at_utc = ? WHERE recording_guid = ?`,
			StatusFailedTransient, newCount, errorKey, formatTime(at), guid,
		); err != nil {
			return fmt.Errorf("mark failed transient: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return newCount, nil
}

// MarkFailedPermanent records a terminal failure without touching the retry
// counter.
func (s *Store) MarkFailedPermanent(ctx context.Context, guid, errorKey string, at time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE recordings SET status = ?, last_error = ?, last_error_at_utc = ?
         WHERE recording_guid = ? AND status != ?`,
		StatusFailedPermanent, errorKey, formatTime(at), guid, StatusQuarantined,
	)
	if err != nil {
		return fmt.Errorf("mark failed permanent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.explainMiss(ctx, guid)
	}
	return nil
}

// Quarantine removes a recording from all automatic consideration. It is the
// only transition allowed to overwrite another terminal state.
func (s *Store) Quarantine(ctx context.Context, guid, errorKey string, at time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE recordings SET status = ?, last_error = ?, last_error_at_utc = ? WHERE recording_guid = ?`,
		StatusQuarantined, errorKey, formatTime(at), guid,
	)
	if err != nil {
		return fmt.Errorf("quarantine: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, guid)
	}
	return nil
}

// GetRecording fetches a recording by GUID; nil when unknown.
func (s *Store) GetRecording(ctx context.Context, guid string) (*Recording, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE recording_guid = ?`, guid)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// ListTODO returns recordings eligible for processing: pending, or transient
// failures under the retry ceiling. Results are ordered by
// (recording_date_ms, recording_id) ascending so repeated runs see the same
// work list in the same order. A non-positive limit means no limit.
func (s *Store) ListTODO(ctx context.Context, maxRetry, limit int) ([]*Recording, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + recordingColumns + ` FROM recordings
        WHERE (status = ? OR (status = ? AND retry_count < ?))
        ORDER BY recording_date_ms ASC, recording_id ASC`
	args := []any{StatusPending, StatusFailedTransient, maxRetry}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list todo: %w", err)
	}
	defer rows.Close()
	return collectRecordings(rows)
}

// ListByStatus returns recordings matching any of the provided statuses,
// ordered like ListTODO. A non-positive limit means no limit.
func (s *Store) ListByStatus(ctx context.Context, limit int, statuses ...Status) ([]*Recording, error) {
	ctx = ensureContext(ctx)
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses)+1)
	for _, status := range statuses {
		args = append(args, status)
	}
	query := `SELECT ` + recordingColumns + ` FROM recordings
        WHERE status IN (` + makePlaceholders(len(statuses)) + `)
        ORDER BY recording_date_ms ASC, recording_id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()
	return collectRecordings(rows)
}

// GetStats returns call/recording totals and a count per status.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{ByStatus: make(map[Status]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM recordings GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[Status(status)] = count
		stats.Recordings += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM calls`).Scan(&stats.Calls); err != nil {
		return Stats{}, fmt.Errorf("call count: %w", err)
	}
	return stats, nil
}

// explainMiss distinguishes "row does not exist" from "row is quarantined"
// after a guarded update matched nothing.
func (s *Store) explainMiss(ctx context.Context, guid string) error {
	rec, err := s.GetRecording(ctx, guid)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, guid)
	}
	return nil
}

func sizeChanged(existing sql.NullInt64, incoming *int64) bool {
	if !existing.Valid {
		return incoming != nil
	}
	if incoming == nil {
		return true
	}
	return existing.Int64 != *incoming
}

func scanRecording(scanner interface{ Scan(dest ...any) error }) (*Recording, error) {
	var (
		rec         Recording
		statusStr   string
		size        sql.NullInt64
		etag        sql.NullString
		lastError   sql.NullString
		lastErrorAt sql.NullString
		processedAt sql.NullString
	)
	if err := scanner.Scan(
		&rec.GUID,
		&rec.CallGUID,
		&rec.RecordingID,
		&rec.RecordingDateMS,
		&size,
		&etag,
		&statusStr,
		&rec.RetryCount,
		&lastError,
		&lastErrorAt,
		&processedAt,
	); err != nil {
		return nil, err
	}

	rec.Status = Status(statusStr)
	if size.Valid {
		value := size.Int64
		rec.SizeBytes = &value
	}
	rec.ContentETag = etag.String
	rec.LastError = lastError.String
	if lastErrorAt.Valid {
		if at, err := parseTimeString(lastErrorAt.String); err == nil {
			rec.LastErrorAt = &at
		}
	}
	if processedAt.Valid {
		if at, err := parseTimeString(processedAt.String); err == nil {
			rec.LastProcessedAt = &at
		}
	}
	return &rec, nil
}

func collectRecordings(rows *sql.Rows) ([]*Recording, error) {
	var recs []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
