package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/types"
)

// TokenBank defines the token custody the ledger settles against.
// Implementations decide how native denoms and token contracts are reached; the ledger only stages
// operations and hands them over in one batch per message.
type TokenBank interface {
	// Execute applies ops in order. Either every op lands or none does.
	Execute(ctx context.Context, ops []types.TokenOp) error

	// Balance returns the amount of info held by addr.
	Balance(ctx context.Context, addr string, info types.AssetInfo) (sdkmath.Int, error)

	// TokenInfo returns metadata of a token contract, used to learn its decimals.
	TokenInfo(ctx context.Context, contractAddr string) (types.TokenInfo, error)
}

// Staking defines the multi-staking collaborator LP tokens are bonded to.
type Staking interface {
	// Bond credits amount of an LP token already transferred to the staking address to beneficiary.
	Bond(ctx context.Context, bond types.Bond) error

	// Unbond reverses a Bond that could not be settled.
	Unbond(ctx context.Context, bond types.Bond) error

	// Position returns the LP tokens of user held by the staking collaborator.
	Position(ctx context.Context, lpToken, user string) (types.StakedPosition, error)

	// HasRewardSchedules reports whether any reward schedule for lpToken is active or starts later than now.
	HasRewardSchedules(ctx context.Context, lpToken string, now uint64) (bool, error)
}

// ReceiptSink receives a receipt for every committed message. Failures are logged, never propagated.
type ReceiptSink interface {
	Record(ctx context.Context, receipt types.Receipt) error
}
