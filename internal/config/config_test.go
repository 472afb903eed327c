package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexter-zone/dexvault/internal/types"
)

func TestLoadConfigRequiresOwner(t *testing.T) {
	t.Setenv("VAULT_ADDRESS", "vault")
	t.Setenv("VAULT_OWNER", "")
	require.NoError(t, os.Unsetenv("VAULT_OWNER"))
	assert.ErrorContains(t, LoadConfig(), "VAULT_OWNER")

	t.Setenv("VAULT_OWNER", "owner")
	require.NoError(t, LoadConfig())
	assert.Equal(t, "owner", VaultOwner)
}

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	t.Setenv("VAULT_OWNER", "owner")
	t.Setenv("VAULT_ADDRESS", "vault")
	t.Setenv("FEE_COLLECTOR", "collector")
	t.Setenv("POOL_CREATION_FEE", "1000uatom")
	t.Setenv("NATIVE_PRECISIONS", "ufoo:8, uatom:5")
	t.Setenv("SNAPSHOT_INTERVAL_SECONDS", "60")
	t.Setenv("DB_PORT", "6543")

	require.NoError(t, LoadConfig())
	assert.Equal(t, "collector", FeeCollector)
	require.NotNil(t, PoolCreationFee)
	assert.Equal(t, "uatom", PoolCreationFee.Denom)
	assert.EqualValues(t, 1000, PoolCreationFee.Amount.Int64())
	assert.EqualValues(t, 8, NativePrecisions["ufoo"])
	assert.EqualValues(t, 5, NativePrecisions["uatom"])
	assert.EqualValues(t, 6, NativePrecisions["uosmo"])
	assert.Equal(t, time.Minute, SnapshotInterval)
	assert.Equal(t, 6543, DBPort)
	assert.Equal(t, "8080", WebPort)

	fee, auto := InstantiateParams()
	assert.True(t, fee.Enabled)
	assert.Equal(t, types.NativeAsset("uatom"), fee.Fee.Info)
	assert.False(t, auto.Enabled())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("VAULT_OWNER", "owner")
	t.Setenv("VAULT_ADDRESS", "vault")

	t.Setenv("SNAPSHOT_INTERVAL_SECONDS", "soon")
	assert.Error(t, LoadConfig())
	t.Setenv("SNAPSHOT_INTERVAL_SECONDS", "")

	t.Setenv("POOL_CREATION_FEE", "lots")
	assert.Error(t, LoadConfig())

	t.Setenv("POOL_CREATION_FEE", "1000uatom")
	t.Setenv("FEE_COLLECTOR", "")
	assert.Error(t, LoadConfig())
}

func TestParseNativePrecisions(t *testing.T) {
	out, err := ParseNativePrecisions("")
	require.NoError(t, err)
	assert.Empty(t, out)

	for _, bad := range []string{"uatom", "uatom:19", "uatom:x", ":6", "1bad:6"} {
		_, err := ParseNativePrecisions(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePoolCreationFee(t *testing.T) {
	coin, err := ParsePoolCreationFee("")
	require.NoError(t, err)
	assert.Nil(t, coin)

	_, err = ParsePoolCreationFee("0uatom")
	assert.Error(t, err)
}

func TestDefaultPoolConfigsAreValid(t *testing.T) {
	seen := map[string]bool{}
	for _, pc := range DefaultPoolConfigs() {
		assert.NoError(t, pc.DefaultFeeInfo.Validate(), pc.PoolType)
		assert.True(t, pc.AllowInstantiation.Valid(), pc.PoolType)
		assert.False(t, seen[pc.PoolType])
		seen[pc.PoolType] = true
	}
	assert.Len(t, seen, 3)
}
