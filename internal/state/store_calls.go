package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertCall inserts or refreshes a call row. The stored row changes only
// when lastUpdateMS strictly increases; anything else is reported as
// Unchanged so out-of-order fetches can never regress a call.
func (s *Store) UpsertCall(ctx context.Context, guid, callID string, lastUpdateMS int64, seenAt time.Time) (UpsertResult, error) {
	ctx = ensureContext(ctx)

	var result UpsertResult
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin upsert tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var existing int64
		err = tx.QueryRowContext(ctx, `SELECT last_update_ms FROM calls WHERE call_guid = ?`, guid).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			seen := formatTime(seenAt)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO calls (call_guid, call_id, last_update_ms, seen_at_utc, first_seen_at_utc)
                 VALUES (?, ?, ?, ?, ?)`,
				guid, callID, lastUpdateMS, seen, seen,
			); err != nil {
				return fmt.Errorf("insert call: %w", err)
			}
			result = Inserted
		case err != nil:
			return fmt.Errorf("lookup call: %w", err)
		case lastUpdateMS > existing:
			if _, err := tx.ExecContext(ctx,
				`UPDATE calls SET call_id = ?, last_update_ms = ?, seen_at_utc = ? WHERE call_guid = ?`,
				callID, lastUpdateMS, formatTime(seenAt), guid,
			); err != nil {
				return fmt.Errorf("update call: %w", err)
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

// GetCall fetches a call by GUID; nil when unknown.
func (s *Store) GetCall(ctx context.Context, guid string) (*Call, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT call_guid, call_id, last_update_ms, seen_at_utc, first_seen_at_utc FROM calls WHERE call_guid = ?`,
		guid,
	)

	var (
		call     Call
		seenRaw  string
		firstRaw string
	)
	err := row.Scan(&call.GUID, &call.CallID, &call.LastUpdateMS, &seenRaw, &firstRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	if seen, err := parseTimeString(seenRaw); err == nil {
		call.SeenAtUTC = seen
	}
	if first, err := parseTimeString(firstRaw); err == nil {
		call.FirstSeenUTC = first
	}
	return &call, nil
}
