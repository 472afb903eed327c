/*

This file contains the default pool type registry installed when the ledger starts without a snapshot.

*/

package config

import (
	"github.com/dexter-zone/dexvault/internal/types"
)

// DefaultFeeInfo is the commission of the built-in pool types: 0.3% of which 20% goes to the protocol.
var DefaultFeeInfo = types.FeeInfo{
	TotalFeeBps:        30,
	ProtocolFeePercent: 20,
	DevFeePercent:      0,
}

// DefaultPoolConfigs returns one pool type per engine.
func DefaultPoolConfigs() []types.PoolTypeConfig {
	stableFee := DefaultFeeInfo
	stableFee.TotalFeeBps = 4 // Correlated assets trade at a tighter commission.

	return []types.PoolTypeConfig{
		{
			PoolType:           "xyk",
			Engine:             types.EngineXYK,
			DefaultFeeInfo:     DefaultFeeInfo,
			AllowInstantiation: types.AllowAnyone,
		},
		{
			PoolType:           "stable",
			Engine:             types.EngineStable,
			DefaultFeeInfo:     stableFee,
			AllowInstantiation: types.AllowOwnerAndWhitelist,
		},
		{
			PoolType:           "weighted",
			Engine:             types.EngineWeighted,
			DefaultFeeInfo:     DefaultFeeInfo,
			AllowInstantiation: types.AllowAnyone,
		},
	}
}
