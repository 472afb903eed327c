package pool

import (
	"encoding/json"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/dexter-zone/dexvault/internal/types"
)

var (
	atom = types.NativeAsset("uatom")
	osmo = types.NativeAsset("uosmo")
	usdc = types.NativeAsset("uusdc")
)

func intPtr(v int64) *sdkmath.Int {
	out := sdkmath.NewInt(v)
	return &out
}

func decPtr(s string) *sdkmath.LegacyDec {
	out := sdkmath.LegacyMustNewDecFromStr(s)
	return &out
}

// newPool builds a pool with equal precision for every asset.
func newPool(engine types.EngineKind, bps uint16, precision uint8, balances map[types.AssetInfo]int64) types.PoolInfo {
	infos := make([]types.AssetInfo, 0, len(balances))
	for info := range balances {
		infos = append(infos, info)
	}
	types.SortAssetInfos(infos)

	pool := types.PoolInfo{
		PoolID:   1,
		PoolType: string(engine),
		Engine:   engine,
		FeeInfo:  types.FeeInfo{TotalFeeBps: bps},
	}
	for _, info := range infos {
		pool.Assets = append(pool.Assets, types.NewAsset(info, sdkmath.NewInt(balances[info])))
		pool.Precisions = append(pool.Precisions, types.AssetPrecision{Info: info, Precision: precision})
	}
	pool.Twap.CumulativePrices = InitialCumulativePrices(infos)
	return pool
}

// instantiate runs the engine's Instantiate and stores its result on pool.
func instantiate(t *testing.T, e Engine, pool *types.PoolInfo, params any) {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		require.NoError(t, err)
		raw = b
	}
	res, err := e.Instantiate(InstantiateRequest{
		PoolID:     pool.PoolID,
		AssetInfos: pool.AssetInfos(),
		Precisions: pool.Precisions,
		InitParams: raw,
	})
	require.NoError(t, err)
	pool.Math = res.Math
	pool.LpPrecision = res.LpPrecision
}

func snap(pool types.PoolInfo, total int64, blockTime uint64) Snapshot {
	return NewSnapshot(pool, sdkmath.NewInt(total), blockTime)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
