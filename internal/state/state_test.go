package state

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexter-zone/dexvault/internal/types"
)

func TestEncodeReceiptRoundTrip(t *testing.T) {
	r := types.Receipt{
		ID:          uuid.New(),
		Kind:        types.MsgSwap,
		PoolID:      3,
		Sender:      "alice",
		BlockTime:   1_700_000_000,
		CommittedAt: time.Unix(1_700_000_000, 0).UTC(),
		TokenOps: []types.TokenOp{{
			Type:   types.TokenOpTransfer,
			From:   "alice",
			To:     "vault",
			Asset:  types.NewAsset(types.NativeAsset("uatom"), sdkmath.NewInt(10_000)),
			Reason: "swap_offer",
		}},
		Attributes: map[string]string{"offer_asset": "uatom"},
	}

	row, err := encodeReceipt(r)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(row.bonds))

	var decoded types.Receipt
	require.NoError(t, decodeReceiptJSON(&decoded, row.tokenOps, row.bonds, row.attributes))
	require.Len(t, decoded.TokenOps, 1)
	assert.Equal(t, "vault", decoded.TokenOps[0].To)
	assert.True(t, decoded.TokenOps[0].Asset.Amount.Equal(sdkmath.NewInt(10_000)))
	assert.Nil(t, decoded.Bonds)
	assert.Equal(t, "uatom", decoded.Attributes["offer_asset"])
}

func TestEncodeReceiptEmptyCollections(t *testing.T) {
	row, err := encodeReceipt(types.Receipt{ID: uuid.New(), Kind: types.MsgUpdateConfig})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(row.tokenOps))
	assert.JSONEq(t, `[]`, string(row.bonds))
	assert.JSONEq(t, `{}`, string(row.attributes))
}

func TestDecodeReceiptRejectsMalformedJSON(t *testing.T) {
	var r types.Receipt
	assert.Error(t, decodeReceiptJSON(&r, []byte(`{`), nil, nil))
}

func TestSnapshotPoolIDs(t *testing.T) {
	snap := types.LedgerSnapshot{
		Pools: []types.PoolRecord{
			{Pool: types.PoolInfo{PoolID: 1}},
			{Pool: types.PoolInfo{PoolID: 4}},
		},
		Defunct: []types.DefunctRecord{{Info: types.DefunctInfo{PoolID: 2}}},
	}
	active, defunct := snapshotPoolIDs(snap)
	assert.Equal(t, []int64{1, 4}, active)
	assert.Equal(t, []int64{2}, defunct)

	active, defunct = snapshotPoolIDs(types.LedgerSnapshot{})
	assert.NotNil(t, active)
	assert.Empty(t, active)
	assert.Empty(t, defunct)
}

func TestStoresRequireDatabase(t *testing.T) {
	saved := DB
	DB = nil
	defer func() { DB = saved }()

	_, err := SaveLedgerSnapshot(types.LedgerSnapshot{})
	assert.Error(t, err)
	_, err = LoadLatestSnapshot()
	assert.Error(t, err)
	assert.Error(t, NewReceiptStore().Record(context.Background(), types.Receipt{ID: uuid.New()}))
	_, err = GetRecentReceipts(5, 0)
	assert.Error(t, err)
	_, err = LoadPoolTwaps(1, 10)
	assert.Error(t, err)
	assert.Error(t, TestDBConnection())
}

func TestDSN(t *testing.T) {
	cfg := DBConfig{Host: "localhost", Port: 5432, User: "dex", Password: "pw", DBName: "dexvault", SSLMode: "disable"}
	assert.Equal(t, "host=localhost port=5432 user=dex password=pw dbname=dexvault sslmode=disable", cfg.DSN())
}
