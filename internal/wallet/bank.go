/*

Package wallet holds the in-memory token custody the ledger settles against. Balances are kept per address
and per asset; token contracts have to be registered before they can be held so their decimals are known.
Minted LP tokens register themselves on first mint.

*/

package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexter-zone/dexvault/internal/logger"
	"github.com/dexter-zone/dexvault/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidAddress      = errors.New("address is invalid")
	ErrUnknownToken        = errors.New("token contract is not registered")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidOperation    = errors.New("token operation is invalid")
)

var walletLogger = logger.GetForComponent("wallet_bank")

// Bank is a TokenBank backed by process memory. It is safe for concurrent use.
type Bank struct {
	mu       sync.RWMutex
	balances map[string]map[string]sdkmath.Int // address -> asset key -> amount
	supply   map[string]sdkmath.Int            // asset key -> minted minus burned
	tokens   map[string]types.TokenInfo
}

// NewBank returns an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances: map[string]map[string]sdkmath.Int{},
		supply:   map[string]sdkmath.Int{},
		tokens:   map[string]types.TokenInfo{},
	}
}

// RegisterToken makes a token contract known to the bank.
func (b *Bank) RegisterToken(info types.TokenInfo) error {
	if info.Address == "" {
		return fmt.Errorf("%w: empty token address", ErrInvalidAddress)
	}
	if info.Decimals > types.MaxPrecision {
		return fmt.Errorf("%w: %d decimals", ErrInvalidOperation, info.Decimals)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[info.Address] = info
	walletLogger.Debug().Str("token", info.Address).Uint8("decimals", info.Decimals).Msg("Token registered")
	return nil
}

// Fund credits coins to addr outside of any settlement.
func (b *Bank) Fund(addr string, coins sdk.Coins) error {
	if addr == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	if err := coins.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range coins {
		credit(b.balances, addr, types.NativeAsset(c.Denom).Key(), c.Amount)
	}
	return nil
}

// FundToken credits amount of a registered token to addr.
func (b *Bank) FundToken(addr, contractAddr string, amount sdkmath.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tokens[contractAddr]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, contractAddr)
	}
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: negative amount", ErrInvalidOperation)
	}
	credit(b.balances, addr, types.TokenAsset(contractAddr).Key(), amount)
	return nil
}

func (b *Bank) Balance(_ context.Context, addr string, info types.AssetInfo) (sdkmath.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return amountOf(b.balances, addr, info.Key()), nil
}

// Balances returns every non-zero balance of addr keyed by asset key.
func (b *Bank) Balances(addr string) map[string]sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := map[string]sdkmath.Int{}
	for k, v := range b.balances[addr] {
		if v.IsPositive() {
			out[k] = v
		}
	}
	return out
}

// Supply returns the minted minus burned amount of an asset.
func (b *Bank) Supply(info types.AssetInfo) sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.supply[info.Key()]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (b *Bank) TokenInfo(_ context.Context, contractAddr string) (types.TokenInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	info, ok := b.tokens[contractAddr]
	if !ok {
		return types.TokenInfo{}, fmt.Errorf("%w: %s", ErrUnknownToken, contractAddr)
	}
	return info, nil
}

// Holders lists the addresses holding a positive amount of info, sorted.
func (b *Bank) Holders(info types.AssetInfo) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	key := info.Key()
	var out []string
	for addr, bal := range b.balances {
		if v, ok := bal[key]; ok && v.IsPositive() {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}

func amountOf(balances map[string]map[string]sdkmath.Int, addr, key string) sdkmath.Int {
	if v, ok := balances[addr][key]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func credit(balances map[string]map[string]sdkmath.Int, addr, key string, amount sdkmath.Int) {
	acct, ok := balances[addr]
	if !ok {
		acct = map[string]sdkmath.Int{}
		balances[addr] = acct
	}
	acct[key] = amountOf(balances, addr, key).Add(amount)
}

func debit(balances map[string]map[string]sdkmath.Int, addr, key string, amount sdkmath.Int) error {
	have := amountOf(balances, addr, key)
	if have.LT(amount) {
		return fmt.Errorf("%w: %s holds %s %s, needs %s", ErrInsufficientBalance, addr, have, key, amount)
	}
	balances[addr][key] = have.Sub(amount)
	return nil
}
