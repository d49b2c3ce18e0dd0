package storage

import (
	"context"
	"fmt"
)

// PipelineState is the singleton row holding the incremental
// processing high-water marks. It only ever moves forward; advancing
// last_vectorized_id happens inside the clustering transaction (see
// AddMemberAndScore).
type PipelineState struct {
	LastVectorizedID int
	LastClusteredID  int
}

// GetPipelineState reads the singleton state row.
func (db *DB) GetPipelineState(ctx context.Context) (PipelineState, error) {
	var s PipelineState

	err := db.Pool.QueryRow(ctx, `
		SELECT last_vectorized_id, last_clustered_id FROM pipeline_state WHERE id = 1
	`).Scan(&s.LastVectorizedID, &s.LastClusteredID)
	if err != nil {
		return PipelineState{}, fmt.Errorf("get pipeline state: %w", err)
	}

	return s, nil
}

// SetLastClusteredID advances the clustering mark.
func (db *DB) SetLastClusteredID(ctx context.Context, id int) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE pipeline_state SET last_clustered_id = $1 WHERE id = 1
	`, id); err != nil {
		return fmt.Errorf("set last clustered id: %w", err)
	}

	return nil
}
