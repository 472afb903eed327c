/*

Token metadata the ledger needs from the token collaborator, mostly to learn the decimals of contract tokens
and to instantiate LP tokens.

*/

package types

import "strconv"

const (
	LpTokenSymbol = "DEX-LP"
	// MaxPrecision is the largest number of decimals any pool asset may carry.
	MaxPrecision uint8 = 18
)

type TokenInfo struct {
	Address  string `json:"address"`  // e.g., "dexlp1"
	Name     string `json:"name"`     // e.g., "1-Dex-LP"
	Symbol   string `json:"symbol"`   // e.g., "DEX-LP"
	Decimals uint8  `json:"decimals"` // e.g., 6
}

// LpTokenName is the LP token name for a pool id.
func LpTokenName(poolID uint64) string {
	return strconv.FormatUint(poolID, 10) + "-Dex-LP"
}
