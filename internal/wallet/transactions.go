package wallet

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/logger"
	"github.com/dexter-zone/dexvault/internal/types"
)

var txLogger = logger.GetForComponent("transaction_executor")

// Execute applies a settlement batch atomically: the ops run against a scratch copy of the touched accounts
// and the copy replaces the live balances only when every op succeeded.
func (b *Bank) Execute(ctx context.Context, ops []types.TokenOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, op := range ops {
		if err := validateOp(op, i); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	scratch := map[string]map[string]sdkmath.Int{}
	supply := map[string]sdkmath.Int{}
	touch := func(addr string) {
		if _, ok := scratch[addr]; ok {
			return
		}
		acct := map[string]sdkmath.Int{}
		for k, v := range b.balances[addr] {
			acct[k] = v
		}
		scratch[addr] = acct
	}
	supplyOf := func(key string) sdkmath.Int {
		if v, ok := supply[key]; ok {
			return v
		}
		if v, ok := b.supply[key]; ok {
			return v
		}
		return sdkmath.ZeroInt()
	}

	newTokens := map[string]types.TokenInfo{}
	for i, op := range ops {
		info := op.Asset.Info
		key := info.Key()
		if !info.IsNative() {
			if _, ok := b.tokens[info.ContractAddr]; !ok {
				if op.Type != types.TokenOpMint {
					return fmt.Errorf("op %d: %w: %s", i, ErrUnknownToken, info.ContractAddr)
				}
				newTokens[info.ContractAddr] = types.TokenInfo{Address: info.ContractAddr, Symbol: types.LpTokenSymbol}
			}
		}
		switch op.Type {
		case types.TokenOpTransfer:
			touch(op.From)
			touch(op.To)
			if err := debit(scratch, op.From, key, op.Asset.Amount); err != nil {
				return fmt.Errorf("op %d (%s): %w", i, op.Reason, err)
			}
			credit(scratch, op.To, key, op.Asset.Amount)
		case types.TokenOpMint:
			touch(op.To)
			credit(scratch, op.To, key, op.Asset.Amount)
			supply[key] = supplyOf(key).Add(op.Asset.Amount)
		case types.TokenOpBurn:
			touch(op.From)
			if err := debit(scratch, op.From, key, op.Asset.Amount); err != nil {
				return fmt.Errorf("op %d (%s): %w", i, op.Reason, err)
			}
			supply[key] = supplyOf(key).Sub(op.Asset.Amount)
		}
	}

	for addr, acct := range scratch {
		b.balances[addr] = acct
	}
	for key, v := range supply {
		b.supply[key] = v
	}
	for addr, info := range newTokens {
		b.tokens[addr] = info
	}
	txLogger.Debug().Int("ops", len(ops)).Msg("Token batch executed")
	return nil
}

// validateOp checks the shape of one operation before anything is touched.
func validateOp(op types.TokenOp, index int) error {
	if err := op.Asset.Validate(); err != nil {
		return errors.Join(ErrInvalidOperation, fmt.Errorf("op %d: %w", index, err))
	}
	if !op.Asset.AmountOrZero().IsPositive() {
		return fmt.Errorf("%w: op %d has a non-positive amount", ErrInvalidOperation, index)
	}
	switch op.Type {
	case types.TokenOpTransfer:
		if op.From == "" || op.To == "" {
			return fmt.Errorf("%w: op %d transfer needs both accounts", ErrInvalidAddress, index)
		}
	case types.TokenOpMint:
		if op.To == "" || op.Asset.Info.IsNative() {
			return fmt.Errorf("%w: op %d mints need a token and a recipient", ErrInvalidOperation, index)
		}
	case types.TokenOpBurn:
		if op.From == "" || op.Asset.Info.IsNative() {
			return fmt.Errorf("%w: op %d burns need a token and a holder", ErrInvalidOperation, index)
		}
	default:
		return fmt.Errorf("%w: op %d has type %q", ErrInvalidOperation, index, op.Type)
	}
	return nil
}
