// ./internal/state/snapshot_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/dexter-zone/dexvault/internal/types"
)

// ErrNoSnapshot is returned when the snapshot table is empty.
var ErrNoSnapshot = errors.New("no ledger snapshot stored")

// snapshotPoolIDs returns the active and defunct pool ids of snap as int64 for BIGINT[] columns.
func snapshotPoolIDs(snap types.LedgerSnapshot) (active, defunct []int64) {
	active = make([]int64, 0, len(snap.Pools))
	for _, p := range snap.Pools {
		active = append(active, int64(p.Pool.PoolID))
	}
	defunct = make([]int64, 0, len(snap.Defunct))
	for _, d := range snap.Defunct {
		defunct = append(defunct, int64(d.Info.PoolID))
	}
	return active, defunct
}

// SaveLedgerSnapshot stores a full ledger snapshot and returns its id.
func SaveLedgerSnapshot(snap types.LedgerSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	stateJSON, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal ledger snapshot: %w", err)
	}
	active, defunct := snapshotPoolIDs(snap)

	query := `
		INSERT INTO ledger_snapshots (block_time, taken_at, pool_ids, defunct_pool_ids, state)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING snapshot_id
	`
	var snapshotID int64
	err = DB.QueryRow(query,
		int64(snap.BlockTime), snap.TakenAt, pq.Array(active), pq.Array(defunct), stateJSON,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ledger snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Uint64("block_time", snap.BlockTime).
		Int("pools", len(active)).
		Int("defunct", len(defunct)).
		Msg("Saved ledger snapshot")
	return snapshotID, nil
}

// LoadLatestSnapshot returns the most recent snapshot or ErrNoSnapshot.
func LoadLatestSnapshot() (*types.LedgerSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var (
		snapshotID int64
		stateJSON  []byte
	)
	query := `SELECT snapshot_id, state FROM ledger_snapshots ORDER BY taken_at DESC, snapshot_id DESC LIMIT 1`
	err := DB.QueryRow(query).Scan(&snapshotID, &stateJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to load latest ledger snapshot: %w", err)
	}

	var snap types.LedgerSnapshot
	if err := json.Unmarshal(stateJSON, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger snapshot %d: %w", snapshotID, err)
	}
	log.Info().Int64("snapshot_id", snapshotID).Uint64("block_time", snap.BlockTime).Msg("Loaded latest ledger snapshot")
	return &snap, nil
}

// SnapshotSummary is a snapshot row without its state payload.
type SnapshotSummary struct {
	SnapshotID     int64   `json:"snapshot_id"`
	BlockTime      uint64  `json:"block_time"`
	TakenAt        string  `json:"taken_at"`
	PoolIDs        []int64 `json:"pool_ids"`
	DefunctPoolIDs []int64 `json:"defunct_pool_ids"`
}

// ListSnapshots returns the newest snapshot headers.
func ListSnapshots(limit int) ([]SnapshotSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	rows, err := DB.Query(`
		SELECT snapshot_id, block_time, taken_at, pool_ids, defunct_pool_ids
		FROM ledger_snapshots
		ORDER BY taken_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotSummary
	for rows.Next() {
		var (
			s         SnapshotSummary
			blockTime int64
			takenAt   sql.NullTime
		)
		if err := rows.Scan(&s.SnapshotID, &blockTime, &takenAt, pq.Array(&s.PoolIDs), pq.Array(&s.DefunctPoolIDs)); err != nil {
			log.Error().Err(err).Msg("Failed to scan snapshot row")
			continue
		}
		s.BlockTime = uint64(blockTime)
		if takenAt.Valid {
			s.TakenAt = takenAt.Time.UTC().Format("2006-01-02T15:04:05Z")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// LoadPoolTwaps returns the TWAP state of one pool from the newest snapshots that contain it,
// oldest first.
func LoadPoolTwaps(poolID uint64, limit int) ([]types.Twap, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := DB.Query(`
		SELECT twap FROM (
			SELECT s.snapshot_id, s.block_time, p->'pool'->'twap' AS twap
			FROM ledger_snapshots s, jsonb_array_elements(s.state->'pools') AS p
			WHERE $1::BIGINT = ANY(s.pool_ids)
			  AND (p->'pool'->>'pool_id')::BIGINT = $1::BIGINT
			ORDER BY s.block_time DESC, s.snapshot_id DESC
			LIMIT $2
		) recent
		ORDER BY block_time ASC, snapshot_id ASC
	`, int64(poolID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool twaps: %w", err)
	}
	defer rows.Close()

	var out []types.Twap
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan twap row: %w", err)
		}
		var t types.Twap
		if err := json.Unmarshal(raw, &t); err != nil {
			log.Warn().Err(err).Uint64("pool_id", poolID).Msg("Skipping undecodable twap")
			continue
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
