package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustPrecision(t *testing.T) {
	out, err := AdjustPrecision(sdkmath.NewInt(1_234_567), 6, 3)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1_234), out)

	out, err = AdjustPrecision(sdkmath.NewInt(12), 2, 6)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(120_000), out)

	_, err = AdjustPrecision(sdkmath.NewInt(1), 0, 40)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
	_, err = AdjustPrecision(sdkmath.Int{}, 0, 6)
	assert.ErrorIs(t, err, ErrAmountNil)
}

func TestCheckedHelpers(t *testing.T) {
	out, err := MulRatio(sdkmath.NewInt(10), sdkmath.NewInt(3), sdkmath.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(7), out)
	_, err = MulRatio(sdkmath.NewInt(10), sdkmath.NewInt(3), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, ErrDivisionByZero)

	assert.Equal(t, sdkmath.NewInt(31), IntegerSqrt(sdkmath.NewInt(1_000)))
	assert.True(t, IntegerSqrt(sdkmath.NewInt(-4)).IsZero())
	assert.Equal(t, MaxUint128, SaturatingAdd(MaxUint128, sdkmath.OneInt()))
	assert.Equal(t, sdkmath.NewInt(3), MinInt(sdkmath.NewInt(3), sdkmath.NewInt(5)))
	assert.True(t, SubOrZero(sdkmath.NewInt(3), sdkmath.NewInt(5)).IsZero())
	assert.Equal(t, sdkmath.NewInt(1_000_000_000), Pow10(9))
}

func TestDisplayConversions(t *testing.T) {
	d, err := ToDisplayAmount(sdkmath.NewInt(1_010_000), 6)
	require.NoError(t, err)
	assert.Equal(t, "1.01", d.String())

	_, err = ToDisplayAmount(sdkmath.NewInt(1), 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)

	d, err = DecToDisplay(sdkmath.LegacyMustNewDecFromStr("0.25"))
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("0.25")))
	_, err = DecToDisplay(sdkmath.LegacyDec{})
	assert.ErrorIs(t, err, ErrAmountNil)
}
