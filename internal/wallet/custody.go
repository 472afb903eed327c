package wallet

import (
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/types"
)

// ExportCustody captures the bank and staking state in a deterministic order. staking may be nil.
func ExportCustody(b *Bank, s *Staking) *types.CustodyState {
	out := &types.CustodyState{}

	b.mu.RLock()
	addrs := make([]string, 0, len(b.balances))
	for addr := range b.balances {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		acct := types.AccountBalances{Address: addr}
		for key, amount := range b.balances[addr] {
			if !amount.IsPositive() {
				continue
			}
			info, err := types.ParseAssetKey(key)
			if err != nil {
				walletLogger.Error().Err(err).Str("key", key).Msg("Skipping unparseable balance key")
				continue
			}
			acct.Assets = append(acct.Assets, types.NewAsset(info, amount))
		}
		if len(acct.Assets) == 0 {
			continue
		}
		types.SortAssets(acct.Assets)
		out.Accounts = append(out.Accounts, acct)
	}
	for key, amount := range b.supply {
		info, err := types.ParseAssetKey(key)
		if err != nil {
			continue
		}
		out.Supply = append(out.Supply, types.NewAsset(info, amount))
	}
	types.SortAssets(out.Supply)
	for _, t := range b.tokens {
		out.Tokens = append(out.Tokens, t)
	}
	b.mu.RUnlock()
	sort.Slice(out.Tokens, func(i, j int) bool { return out.Tokens[i].Address < out.Tokens[j].Address })

	if s == nil {
		return out
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for lp, users := range s.positions {
		for user, pos := range users {
			if !pos.Total().IsPositive() {
				continue
			}
			out.Positions = append(out.Positions, types.StakedEntry{LpToken: lp, User: user, Position: pos})
		}
	}
	sort.Slice(out.Positions, func(i, j int) bool {
		if out.Positions[i].LpToken != out.Positions[j].LpToken {
			return out.Positions[i].LpToken < out.Positions[j].LpToken
		}
		return out.Positions[i].User < out.Positions[j].User
	})
	out.Schedules = append(out.Schedules, s.schedules...)
	return out
}

// RestoreCustody replaces the bank and staking state with cs. staking may be nil.
func RestoreCustody(b *Bank, s *Staking, cs types.CustodyState) error {
	balances := map[string]map[string]sdkmath.Int{}
	for _, acct := range cs.Accounts {
		if acct.Address == "" {
			return fmt.Errorf("%w: empty address in custody state", ErrInvalidAddress)
		}
		for _, a := range acct.Assets {
			if err := a.Validate(); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
			}
			credit(balances, acct.Address, a.Info.Key(), a.AmountOrZero())
		}
	}
	supply := map[string]sdkmath.Int{}
	for _, a := range cs.Supply {
		supply[a.Info.Key()] = a.AmountOrZero()
	}
	tokens := map[string]types.TokenInfo{}
	for _, t := range cs.Tokens {
		tokens[t.Address] = t
	}

	b.mu.Lock()
	b.balances, b.supply, b.tokens = balances, supply, tokens
	b.mu.Unlock()

	if s != nil {
		positions := map[string]map[string]types.StakedPosition{}
		for _, e := range cs.Positions {
			users, ok := positions[e.LpToken]
			if !ok {
				users = map[string]types.StakedPosition{}
				positions[e.LpToken] = users
			}
			users[e.User] = e.Position
		}
		s.mu.Lock()
		s.positions = positions
		s.schedules = append([]RewardSchedule(nil), cs.Schedules...)
		s.mu.Unlock()
	}

	walletLogger.Info().Int("accounts", len(cs.Accounts)).Int("tokens", len(cs.Tokens)).
		Int("positions", len(cs.Positions)).Msg("Custody state restored")
	return nil
}
