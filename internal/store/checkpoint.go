package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// checkpointsKept is how many checkpoints survive a save.
const checkpointsKept = 3

// SaveCheckpoint stores a serialized snapshot and prunes older checkpoints.
func (s *Store) SaveCheckpoint(ctx context.Context, version int64, state []byte, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save checkpoint: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO state_checkpoints (version, state, created_at)
		VALUES (?, ?, ?)
	`, version, string(state), toMillis(now))
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM state_checkpoints
		WHERE id NOT IN (SELECT id FROM state_checkpoints ORDER BY id DESC LIMIT ?)
	`, checkpointsKept)
	if err != nil {
		return fmt.Errorf("prune checkpoints: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save checkpoint: commit: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the most recently saved checkpoint.
// found is false if none has been saved yet.
func (s *Store) LatestCheckpoint(ctx context.Context) (cp Checkpoint, found bool, err error) {
	var state string
	var created int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id, version, state, created_at
		FROM state_checkpoints
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&cp.ID, &cp.Version, &state, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read latest checkpoint: %w", err)
	}
	cp.State = []byte(state)
	cp.CreatedAt = fromMillis(created)
	return cp, true, nil
}
