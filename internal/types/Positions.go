/*

This file contains the types for LP positions held outside of a user's wallet and for the token movements
a settlement stages before it commits.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// StakedPosition is what the staking collaborator reports for one user and one LP token.
type StakedPosition struct {
	Bonded            sdkmath.Int `json:"bonded"`
	Unbonding         sdkmath.Int `json:"unbonding"`
	UnlockedUnclaimed sdkmath.Int `json:"unlocked_unclaimed"`
}

// Total sums the three buckets, treating nil as zero.
func (p StakedPosition) Total() sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, v := range []sdkmath.Int{p.Bonded, p.Unbonding, p.UnlockedUnclaimed} {
		if !v.IsNil() {
			total = total.Add(v)
		}
	}
	return total
}

// TokenOpType defines the low-level token operations a settlement can stage.
type TokenOpType string

const (
	TokenOpTransfer TokenOpType = "TRANSFER" // Move tokens between two accounts
	TokenOpMint     TokenOpType = "MINT"     // Mint LP tokens to an account
	TokenOpBurn     TokenOpType = "BURN"     // Burn LP tokens held by an account
)

// TokenOp is one staged token movement. From is empty for mints and To is empty for burns.
type TokenOp struct {
	Type   TokenOpType `json:"type"`
	From   string      `json:"from,omitempty"`
	To     string      `json:"to,omitempty"`
	Asset  Asset       `json:"asset"`
	Reason string      `json:"reason,omitempty"` // e.g., "refund", "protocol_fee"
}

// Bond is a staged auto-stake of freshly minted LP tokens.
type Bond struct {
	Beneficiary string      `json:"beneficiary"`
	LpToken     string      `json:"lp_token"`
	Amount      sdkmath.Int `json:"amount"`
}
