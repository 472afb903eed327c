// ./internal/state/receipt_store.go
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dexter-zone/dexvault/internal/types"
)

// ReceiptStore appends committed ledger receipts to settlement_receipts.
type ReceiptStore struct{}

// NewReceiptStore returns a store backed by the global DB pool.
func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{}
}

// receiptRow holds the JSONB columns of a receipt.
type receiptRow struct {
	tokenOps   []byte
	bonds      []byte
	attributes []byte
}

func encodeReceipt(r types.Receipt) (receiptRow, error) {
	var (
		row receiptRow
		err error
	)
	ops := r.TokenOps
	if ops == nil {
		ops = []types.TokenOp{}
	}
	if row.tokenOps, err = json.Marshal(ops); err != nil {
		return row, fmt.Errorf("failed to marshal token_ops: %w", err)
	}
	bonds := r.Bonds
	if bonds == nil {
		bonds = []types.Bond{}
	}
	if row.bonds, err = json.Marshal(bonds); err != nil {
		return row, fmt.Errorf("failed to marshal bonds: %w", err)
	}
	attrs := r.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	if row.attributes, err = json.Marshal(attrs); err != nil {
		return row, fmt.Errorf("failed to marshal attributes: %w", err)
	}
	return row, nil
}

// Record inserts r. A receipt id that already exists is ignored.
func (s *ReceiptStore) Record(ctx context.Context, r types.Receipt) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	row, err := encodeReceipt(r)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO settlement_receipts
			(receipt_id, kind, pool_id, sender, block_time, committed_at, token_ops, bonds, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (receipt_id) DO NOTHING
	`
	_, err = DB.ExecContext(ctx, query,
		r.ID.String(), string(r.Kind), int64(r.PoolID), r.Sender, int64(r.BlockTime), r.CommittedAt,
		row.tokenOps, row.bonds, row.attributes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt %s: %w", r.ID, err)
	}

	log.Debug().Str("receipt_id", r.ID.String()).Str("kind", string(r.Kind)).Uint64("pool_id", r.PoolID).
		Msg("Recorded settlement receipt")
	return nil
}
