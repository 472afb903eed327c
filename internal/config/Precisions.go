/*

Decimals of well-known native denoms. NATIVE_PRECISIONS extends or overrides this table at startup.

If a denom is missing here and in NATIVE_PRECISIONS, pool creation must carry its precision explicitly.

*/

package config

var (
	DefaultNativePrecisions = map[string]uint8{
		"uatom":     6,
		"uosmo":     6,
		"uusdc":     6,
		"uusdt":     6,
		"ustars":    6,
		"ujuno":     6,
		"uakt":      6,
		"utia":      6,
		"ustrd":     6,
		"uxprt":     6,
		"untrn":     6,
		"inj":       18,
		"aevmos":    18,
		"acanto":    18,
		"stk/uatom": 6,
		"stk/uxprt": 6,
	}
)
