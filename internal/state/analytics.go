package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dexter-zone/dexvault/internal/types"
)

// ErrReceiptNotFound is returned by GetReceiptByID for an unknown id.
var ErrReceiptNotFound = errors.New("receipt not found")

// ActivitySummary counts committed messages, optionally for a single pool.
type ActivitySummary struct {
	PoolID        uint64           `json:"pool_id,omitempty"`
	TotalReceipts int              `json:"total_receipts"`
	ByKind        map[string]int   `json:"by_kind"`
	UniqueSenders int              `json:"unique_senders"`
	LastBlockTime uint64           `json:"last_block_time"`
	LastCommitted string           `json:"last_committed,omitempty"`
	Latest        *types.Receipt   `json:"latest,omitempty"`
	Snapshot      *SnapshotSummary `json:"latest_snapshot,omitempty"`
}

const receiptColumns = `receipt_id, kind, pool_id, sender, block_time, committed_at, token_ops, bonds, attributes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (types.Receipt, error) {
	var (
		r                        types.Receipt
		id, kind                 string
		poolID, blockTime        int64
		opsJSON, bondsJSON, attr []byte
	)
	if err := row.Scan(&id, &kind, &poolID, &r.Sender, &blockTime, &r.CommittedAt, &opsJSON, &bondsJSON, &attr); err != nil {
		return r, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return r, fmt.Errorf("invalid receipt id %q: %w", id, err)
	}
	r.ID = parsed
	r.Kind = types.MsgKind(kind)
	r.PoolID = uint64(poolID)
	r.BlockTime = uint64(blockTime)
	if err := decodeReceiptJSON(&r, opsJSON, bondsJSON, attr); err != nil {
		return r, err
	}
	return r, nil
}

// decodeReceiptJSON unmarshals the JSONB columns of a receipt row.
func decodeReceiptJSON(r *types.Receipt, opsJSON, bondsJSON, attrJSON []byte) error {
	if len(opsJSON) > 0 {
		if err := json.Unmarshal(opsJSON, &r.TokenOps); err != nil {
			return fmt.Errorf("failed to unmarshal token_ops: %w", err)
		}
	}
	if len(bondsJSON) > 0 {
		if err := json.Unmarshal(bondsJSON, &r.Bonds); err != nil {
			return fmt.Errorf("failed to unmarshal bonds: %w", err)
		}
	}
	if len(attrJSON) > 0 {
		if err := json.Unmarshal(attrJSON, &r.Attributes); err != nil {
			return fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	if len(r.TokenOps) == 0 {
		r.TokenOps = nil
	}
	if len(r.Bonds) == 0 {
		r.Bonds = nil
	}
	if len(r.Attributes) == 0 {
		r.Attributes = nil
	}
	return nil
}

// GetRecentReceipts returns the newest receipts, filtered to poolID when it is non-zero.
func GetRecentReceipts(limit int, poolID uint64) ([]types.Receipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	query := `SELECT ` + receiptColumns + ` FROM settlement_receipts
		WHERE ($2::BIGINT = 0 OR pool_id = $2::BIGINT)
		ORDER BY committed_at DESC
		LIMIT $1`

	rows, err := DB.Query(query, limit, int64(poolID))
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent receipts")
		return nil, fmt.Errorf("failed to query recent receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt row")
			continue // Skip this row and continue with others
		}
		receipts = append(receipts, r)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(receipts)).Int("limit", limit).Uint64("pool_id", poolID).Msg("Retrieved recent receipts")
	return receipts, nil
}

// GetReceiptByID retrieves one receipt.
func GetReceiptByID(id uuid.UUID) (*types.Receipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	row := DB.QueryRow(`SELECT `+receiptColumns+` FROM settlement_receipts WHERE receipt_id = $1`, id.String())
	r, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("failed to get receipt %s: %w", id, err)
	}
	return &r, nil
}

// GetActivitySummary aggregates the receipt log, for one pool when poolID is non-zero.
func GetActivitySummary(poolID uint64) (*ActivitySummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	summary := &ActivitySummary{PoolID: poolID, ByKind: map[string]int{}}

	rows, err := DB.Query(`
		SELECT kind, COUNT(*) FROM settlement_receipts
		WHERE ($1::BIGINT = 0 OR pool_id = $1::BIGINT)
		GROUP BY kind
	`, int64(poolID))
	if err != nil {
		return nil, fmt.Errorf("failed to count receipts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt count")
			continue
		}
		summary.ByKind[kind] = count
		summary.TotalReceipts += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	var lastBlock sql.NullInt64
	err = DB.QueryRow(`
		SELECT COUNT(DISTINCT sender), MAX(block_time) FROM settlement_receipts
		WHERE ($1::BIGINT = 0 OR pool_id = $1::BIGINT)
	`, int64(poolID)).Scan(&summary.UniqueSenders, &lastBlock)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to aggregate receipts: %w", err)
	}
	if lastBlock.Valid {
		summary.LastBlockTime = uint64(lastBlock.Int64)
	}

	latest, err := GetRecentReceipts(1, poolID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get latest receipt")
	} else if len(latest) > 0 {
		summary.Latest = &latest[0]
		summary.LastCommitted = latest[0].CommittedAt.UTC().Format("2006-01-02T15:04:05Z")
	}

	if snaps, err := ListSnapshots(1); err == nil && len(snaps) > 0 {
		summary.Snapshot = &snaps[0]
	}

	log.Info().Int("total_receipts", summary.TotalReceipts).Uint64("pool_id", poolID).Msg("Retrieved activity summary")
	return summary, nil
}
