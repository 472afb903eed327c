package wallet

import (
	"context"
	"encoding/json"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexter-zone/dexvault/internal/types"
)

func TestCustodyRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	s := NewStaking()
	require.NoError(t, b.Fund("bob", sdk.NewCoins(sdk.NewInt64Coin("uosmo", 7))))
	require.NoError(t, b.Fund("alice", sdk.NewCoins(sdk.NewInt64Coin("uatom", 100), sdk.NewInt64Coin("uosmo", 3))))
	require.NoError(t, b.Execute(ctx, []types.TokenOp{
		{Type: types.TokenOpMint, To: "alice", Asset: types.NewAsset(lp, sdkmath.NewInt(10)), Reason: "join"},
	}))
	require.NoError(t, s.Bond(ctx, types.Bond{Beneficiary: "alice", LpToken: lp.ContractAddr, Amount: sdkmath.NewInt(4)}))
	require.NoError(t, s.AddRewardSchedule(RewardSchedule{LpToken: lp.ContractAddr, StartTime: 10, EndTime: 20}))

	cs := ExportCustody(b, s)
	require.Len(t, cs.Accounts, 2)
	assert.Equal(t, "alice", cs.Accounts[0].Address)
	assert.Equal(t, "bob", cs.Accounts[1].Address)
	require.Len(t, cs.Positions, 1)
	require.Len(t, cs.Tokens, 1)

	raw, err := json.Marshal(cs)
	require.NoError(t, err)
	var decoded types.CustodyState
	require.NoError(t, json.Unmarshal(raw, &decoded))

	b2 := NewBank()
	s2 := NewStaking()
	require.NoError(t, RestoreCustody(b2, s2, decoded))

	bal, err := b2.Balance(ctx, "alice", atom)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), bal)
	bal, _ = b2.Balance(ctx, "alice", lp)
	assert.Equal(t, sdkmath.NewInt(10), bal)
	assert.Equal(t, sdkmath.NewInt(10), b2.Supply(lp))
	_, err = b2.TokenInfo(ctx, lp.ContractAddr)
	assert.NoError(t, err)

	pos, err := s2.Position(ctx, lp.ContractAddr, "alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(4), pos.Total())
	active, _ := s2.HasRewardSchedules(ctx, lp.ContractAddr, 15)
	assert.True(t, active)
}

func TestRestoreCustodyRejectsEmptyAddress(t *testing.T) {
	b := NewBank()
	require.NoError(t, b.Fund("alice", sdk.NewCoins(sdk.NewInt64Coin("uatom", 1))))
	err := RestoreCustody(b, nil, types.CustodyState{
		Accounts: []types.AccountBalances{{Address: "", Assets: []types.Asset{types.NewAsset(atom, sdkmath.NewInt(1))}}},
	})
	assert.ErrorIs(t, err, ErrInvalidAddress)

	bal, _ := b.Balance(context.Background(), "alice", atom)
	assert.Equal(t, sdkmath.NewInt(1), bal)
}
