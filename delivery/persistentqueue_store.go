package delivery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// pickedRow is a queue row claimed for processing by pickBatch.
type pickedRow struct {
	ID         int64
	Record     UsageRecord
	RetryCount int
}

// pickBatch atomically selects up to limit eligible rows (status=queued,
// scheduled_at<=now) ordered by id, and flips them to processing in the
// same transaction, per the spec's pickup rule.
func pickBatch(ctx context.Context, db *sql.DB, limit int, now time.Time) ([]pickedRow, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin pick transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	rows, err := tx.QueryContext(ctx,
		`SELECT id, payload, retry_count FROM queue
		 WHERE status = ? AND scheduled_at <= ?
		 ORDER BY id ASC LIMIT ?`,
		StatusQueued, float64(now.Unix()), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select eligible rows: %w", err)
	}

	var picked []pickedRow
	for rows.Next() {
		var r pickedRow
		var payload string
		if err := rows.Scan(&r.ID, &payload, &r.RetryCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &r.Record); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode record for row %d: %w", r.ID, err)
		}
		picked = append(picked, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(picked) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]any, 0, len(picked))
	placeholders := ""
	for i, p := range picked {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		ids = append(ids, p.ID)
	}
	updateArgs := append([]any{StatusProcessing, float64(now.Unix())}, ids...)
	query := fmt.Sprintf(`UPDATE queue SET status = ?, updated_at = ? WHERE id IN (%s)`, placeholders)
	if _, err := tx.ExecContext(ctx, query, updateArgs...); err != nil {
		return nil, fmt.Errorf("mark rows processing: %w", err)
	}

	return picked, tx.Commit()
}

// ackBatch deletes successfully delivered rows in one transaction.
func ackBatch(ctx context.Context, db *sql.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	placeholders := ""
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	query := fmt.Sprintf(`DELETE FROM queue WHERE id IN (%s)`, placeholders)
	_, err := db.ExecContext(ctx, query, args...)
	return err
}

// failBatch reschedules or terminally fails each row per the backoff
// formula scheduled_at = now + min(2^retry_count, 300).
func failBatch(ctx context.Context, db *sql.DB, rows []pickedRow, maxRetries int, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fail transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range rows {
		retryCount := r.RetryCount + 1
		if retryCount >= maxRetries {
			if _, err := tx.ExecContext(ctx,
				`UPDATE queue SET status = ?, retry_count = ?, updated_at = ? WHERE id = ?`,
				StatusFailed, retryCount, float64(now.Unix()), r.ID,
			); err != nil {
				return fmt.Errorf("mark row %d failed: %w", r.ID, err)
			}
			continue
		}

		backoff := backoffSeconds(retryCount)
		scheduledAt := float64(now.Unix()) + backoff
		if _, err := tx.ExecContext(ctx,
			`UPDATE queue SET status = ?, retry_count = ?, scheduled_at = ?, updated_at = ? WHERE id = ?`,
			StatusQueued, retryCount, scheduledAt, float64(now.Unix()), r.ID,
		); err != nil {
			return fmt.Errorf("reschedule row %d: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// backoffSeconds implements scheduled_at = now + min(2^retry_count, 300).
func backoffSeconds(retryCount int) float64 {
	if retryCount <= 0 {
		return 1
	}
	if retryCount >= 9 { // 2^9 = 512 already exceeds the 300s cap
		return 300
	}
	delay := float64(uint64(1) << uint(retryCount))
	if delay > 300 {
		return 300
	}
	return delay
}

// reclaimStaleProcessing demotes any processing row older than threshold
// back to queued, recovering from a crash between the pick commit and the
// network call.
func reclaimStaleProcessing(ctx context.Context, db *sql.DB, threshold time.Duration, now time.Time) (int64, error) {
	cutoff := float64(now.Add(-threshold).Unix())
	res, err := db.ExecContext(ctx,
		`UPDATE queue SET status = ?, scheduled_at = ?, updated_at = ?
		 WHERE status = ? AND updated_at <= ?`,
		StatusQueued, float64(now.Unix()), float64(now.Unix()), StatusProcessing, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale processing rows: %w", err)
	}
	return res.RowsAffected()
}

// insertQueued appends one new row with status=queued, scheduled_at=now.
func insertQueued(ctx context.Context, db *sql.DB, record UsageRecord, now time.Time) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO queue (payload, status, retry_count, scheduled_at, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?, ?)`,
		string(payload), StatusQueued, float64(now.Unix()), float64(now.Unix()), float64(now.Unix()),
	)
	return err
}

// countByStatus returns the number of rows in the given status.
func countByStatus(ctx context.Context, db *sql.DB, status string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue WHERE status = ?`, status).Scan(&n)
	return n, err
}
