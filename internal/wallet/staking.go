package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/types"
)

var ErrUnknownPosition = errors.New("staked position not found")

type RewardSchedule = types.RewardSchedule

// Staking is an in-memory multi-staking collaborator. Bonded LP tokens are held by its address in the bank;
// Staking itself only tracks who they belong to.
type Staking struct {
	mu        sync.RWMutex
	positions map[string]map[string]types.StakedPosition // lp token -> user -> position
	schedules []RewardSchedule
}

func NewStaking() *Staking {
	return &Staking{positions: map[string]map[string]types.StakedPosition{}}
}

func (s *Staking) Bond(ctx context.Context, bond types.Bond) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bond.Beneficiary == "" || bond.LpToken == "" {
		return fmt.Errorf("%w: bond needs a beneficiary and an lp token", ErrInvalidAddress)
	}
	if bond.Amount.IsNil() || !bond.Amount.IsPositive() {
		return fmt.Errorf("%w: bond amount must be positive", ErrInvalidOperation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.position(bond.LpToken, bond.Beneficiary)
	pos.Bonded = pos.Bonded.Add(bond.Amount)
	s.set(bond.LpToken, bond.Beneficiary, pos)
	return nil
}

func (s *Staking) Unbond(_ context.Context, bond types.Bond) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.position(bond.LpToken, bond.Beneficiary)
	if pos.Bonded.LT(bond.Amount) {
		return fmt.Errorf("%w: %s bonded %s, unbonding %s", ErrUnknownPosition, bond.Beneficiary, pos.Bonded, bond.Amount)
	}
	pos.Bonded = pos.Bonded.Sub(bond.Amount)
	s.set(bond.LpToken, bond.Beneficiary, pos)
	return nil
}

// SetPosition overwrites a user's position, e.g. to model unbonding buckets.
func (s *Staking) SetPosition(lpToken, user string, pos types.StakedPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(lpToken, user, pos)
}

func (s *Staking) Position(_ context.Context, lpToken, user string) (types.StakedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position(lpToken, user), nil
}

// AddRewardSchedule registers an emission window.
func (s *Staking) AddRewardSchedule(rs RewardSchedule) error {
	if rs.EndTime <= rs.StartTime {
		return fmt.Errorf("%w: reward schedule ends before it starts", ErrInvalidOperation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = append(s.schedules, rs)
	return nil
}

func (s *Staking) HasRewardSchedules(_ context.Context, lpToken string, now uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rs := range s.schedules {
		if rs.LpToken == lpToken && rs.EndTime > now {
			return true, nil
		}
	}
	return false, nil
}

func (s *Staking) position(lpToken, user string) types.StakedPosition {
	pos := s.positions[lpToken][user]
	for _, v := range []*sdkmath.Int{&pos.Bonded, &pos.Unbonding, &pos.UnlockedUnclaimed} {
		if v.IsNil() {
			*v = sdkmath.ZeroInt()
		}
	}
	return pos
}

func (s *Staking) set(lpToken, user string, pos types.StakedPosition) {
	users, ok := s.positions[lpToken]
	if !ok {
		users = map[string]types.StakedPosition{}
		s.positions[lpToken] = users
	}
	users[user] = pos
}
