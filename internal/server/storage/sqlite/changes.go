package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/soundlines/internal/models"
	"github.com/iudanet/soundlines/internal/server/storage"
)

const floorKey = "log_floor"

// AppendChange stores one change record
func (s *Storage) AppendChange(ctx context.Context, rec models.ChangeRecord) error {
	delta, err := json.Marshal(rec.Delta)
	if err != nil {
		return fmt.Errorf("failed to marshal delta: %w", err)
	}

	query := `
		INSERT INTO change_log (seq, type, entity_id, delta, committed_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.Seq,
		string(rec.Type),
		rec.EntityID,
		delta,
		rec.CommittedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ErrChangeExists
		}
		return fmt.Errorf("failed to insert change record: %w", err)
	}

	return nil
}

// TrimChanges deletes records with seq <= upTo and stores the new floor
func (s *Storage) TrimChanges(ctx context.Context, upTo int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM change_log WHERE seq <= ?`, upTo); err != nil {
		return fmt.Errorf("failed to trim change log: %w", err)
	}

	query := `
		INSERT INTO log_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = MAX(value, excluded.value)
	`
	if _, err := tx.ExecContext(ctx, query, floorKey, upTo); err != nil {
		return fmt.Errorf("failed to store log floor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trim: %w", err)
	}
	return nil
}

// LoadChanges returns all retained records ordered by seq and the log floor
func (s *Storage) LoadChanges(ctx context.Context) ([]models.ChangeRecord, int64, error) {
	var floor int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(value), 0) FROM log_meta WHERE key = ?`, floorKey).Scan(&floor)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read log floor: %w", err)
	}

	query := `
		SELECT seq, type, entity_id, delta, committed_at
		FROM change_log
		WHERE seq > ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, floor)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query change log: %w", err)
	}
	defer rows.Close()

	records := make([]models.ChangeRecord, 0)
	for rows.Next() {
		var (
			rec         models.ChangeRecord
			entityType  string
			delta       []byte
			committedAt int64
		)
		if err := rows.Scan(&rec.Seq, &entityType, &rec.EntityID, &delta, &committedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan change record: %w", err)
		}
		if err := json.Unmarshal(delta, &rec.Delta); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal delta of seq %d: %w", rec.Seq, err)
		}
		rec.Type = models.EntityType(entityType)
		rec.CommittedAt = time.Unix(0, committedAt).UTC()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating change log: %w", err)
	}

	return records, floor, nil
}

// ListCursors returns all stored client cursors
func (s *Storage) ListCursors(ctx context.Context) ([]*models.ClientCursor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id, last_seq, updated_at, seen_at FROM client_cursors ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cursors: %w", err)
	}
	defer rows.Close()

	cursors := make([]*models.ClientCursor, 0)
	for rows.Next() {
		var (
			c         models.ClientCursor
			updatedAt int64
			seenAt    int64
		)
		if err := rows.Scan(&c.ClientID, &c.LastSeq, &updatedAt, &seenAt); err != nil {
			return nil, fmt.Errorf("failed to scan cursor: %w", err)
		}
		c.UpdatedAt = time.Unix(0, updatedAt).UTC()
		c.SeenAt = time.Unix(0, seenAt).UTC()
		cursors = append(cursors, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cursors: %w", err)
	}

	return cursors, nil
}

// SaveCursor creates or updates cursor of a client
func (s *Storage) SaveCursor(ctx context.Context, cursor *models.ClientCursor) error {
	query := `
		INSERT INTO client_cursors (client_id, last_seq, updated_at, seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			last_seq = excluded.last_seq,
			updated_at = excluded.updated_at,
			seen_at = excluded.seen_at
	`

	_, err := s.db.ExecContext(ctx, query,
		cursor.ClientID,
		cursor.LastSeq,
		cursor.UpdatedAt.UnixNano(),
		cursor.SeenAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}

	return nil
}
