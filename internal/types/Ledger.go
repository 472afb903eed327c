/*

Read models of the ledger used for persistence and for the settlement receipt log.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// PoolRecord is an active pool together with its LP supply and LP token metadata.
type PoolRecord struct {
	Pool       PoolInfo    `json:"pool"`
	TotalShare sdkmath.Int `json:"total_share"`
	LpToken    TokenInfo   `json:"lp_token"`
}

func (r PoolRecord) Clone() PoolRecord {
	out := r
	out.Pool = r.Pool.Clone()
	return out
}

// DefunctRecord is a defunct pool with the users refunded so far.
type DefunctRecord struct {
	Info          DefunctInfo `json:"info"`
	RefundedUsers []string    `json:"refunded_users"`
}

// LedgerSnapshot is a full, self-contained copy of the ledger state.
type LedgerSnapshot struct {
	Config            Config             `json:"config"`
	Registry          []PoolTypeConfig   `json:"registry"`
	Pools             []PoolRecord       `json:"pools"`
	Defunct           []DefunctRecord    `json:"defunct"`
	OwnershipProposal *OwnershipProposal `json:"ownership_proposal,omitempty"`
	BlockTime         uint64             `json:"block_time"`
	TakenAt           time.Time          `json:"taken_at"`
	Custody           *CustodyState      `json:"custody,omitempty"`
}

// AccountBalances is every asset held by one address.
type AccountBalances struct {
	Address string  `json:"address"`
	Assets  []Asset `json:"assets"`
}

// StakedEntry is one user's position in one LP token.
type StakedEntry struct {
	LpToken  string         `json:"lp_token"`
	User     string         `json:"user"`
	Position StakedPosition `json:"position"`
}

// RewardSchedule is a reward emission window for one LP token, in block seconds.
type RewardSchedule struct {
	LpToken   string `json:"lp_token"`
	StartTime uint64 `json:"start_time"`
	EndTime   uint64 `json:"end_time"`
}

// CustodyState is the bank and staking state of an in-process host, persisted next to the ledger.
type CustodyState struct {
	Accounts  []AccountBalances `json:"accounts"`
	Supply    []Asset           `json:"supply"`
	Tokens    []TokenInfo       `json:"tokens"`
	Positions []StakedEntry     `json:"positions"`
	Schedules []RewardSchedule  `json:"schedules"`
}

// MsgKind names a ledger message in receipts and metrics.
type MsgKind string

const (
	MsgCreatePoolInstance       MsgKind = "create_pool_instance"
	MsgJoinPool                 MsgKind = "join_pool"
	MsgExitPool                 MsgKind = "exit_pool"
	MsgSwap                     MsgKind = "swap"
	MsgUpdateConfig             MsgKind = "update_config"
	MsgUpdatePoolTypeConfig     MsgKind = "update_pool_type_config"
	MsgUpdatePoolInstanceConfig MsgKind = "update_pool_instance_config"
	MsgUpdatePoolParams         MsgKind = "update_pool_params"
	MsgUpdateFee                MsgKind = "update_fee"
	MsgAddToRegistry            MsgKind = "add_to_registry"
	MsgUpdatePauseInfo          MsgKind = "update_pause_info"
	MsgAddToWhitelist           MsgKind = "add_address_to_whitelist"
	MsgRemoveFromWhitelist      MsgKind = "remove_address_from_whitelist"
	MsgProposeNewOwner          MsgKind = "propose_new_owner"
	MsgDropOwnershipProposal    MsgKind = "drop_ownership_proposal"
	MsgClaimOwnership           MsgKind = "claim_ownership"
	MsgDefunctPool              MsgKind = "defunct_pool"
	MsgProcessRefundBatch       MsgKind = "process_refund_batch"
)

// Receipt is the record of one committed message and the token movements it settled.
type Receipt struct {
	ID          uuid.UUID         `json:"id"`
	Kind        MsgKind           `json:"kind"`
	PoolID      uint64            `json:"pool_id,omitempty"`
	Sender      string            `json:"sender"`
	BlockTime   uint64            `json:"block_time"`
	CommittedAt time.Time         `json:"committed_at"`
	TokenOps    []TokenOp         `json:"token_ops,omitempty"`
	Bonds       []Bond            `json:"bonds,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}
