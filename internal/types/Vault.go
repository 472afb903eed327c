package types

// PoolCreationFee is charged on CreatePoolInstance when enabled and sent to the fee collector.
type PoolCreationFee struct {
	Enabled bool  `json:"enabled"`
	Fee     Asset `json:"fee,omitempty"`
}

// AutoStakeImpl names the staking collaborator LP tokens are bonded to when a join asks for auto-stake.
// An empty Multistaking disables auto-staking.
type AutoStakeImpl struct {
	Multistaking string `json:"multistaking,omitempty"`
}

func (a AutoStakeImpl) Enabled() bool {
	return a.Multistaking != ""
}

// Config is the global ledger configuration.
type Config struct {
	Owner                string          `json:"owner"`
	VaultAddress         string          `json:"vault_address"`
	WhitelistedAddresses []string        `json:"whitelisted_addresses"`
	PoolCreationFee      PoolCreationFee `json:"pool_creation_fee"`
	FeeCollector         string          `json:"fee_collector,omitempty"`
	AutoStakeImpl        AutoStakeImpl   `json:"auto_stake_impl"`
	Paused               PauseInfo       `json:"paused"`
	NextPoolID           uint64          `json:"next_pool_id"`
}

func (c Config) Clone() Config {
	out := c
	out.WhitelistedAddresses = append([]string(nil), c.WhitelistedAddresses...)
	return out
}

// IsWhitelisted reports whether addr is a manager.
func (c Config) IsWhitelisted(addr string) bool {
	for _, a := range c.WhitelistedAddresses {
		if a == addr {
			return true
		}
	}
	return false
}

// OwnershipProposal is a pending two-step owner transfer. TTL is an absolute block time in seconds.
type OwnershipProposal struct {
	ProposedOwner string `json:"proposed_owner"`
	TTL           uint64 `json:"ttl"`
}

// PauseTarget selects the scope an UpdatePauseInfo applies to. Exactly one of the fields is set.
type PauseTarget struct {
	PoolID   *uint64 `json:"pool_id,omitempty"`
	PoolType *string `json:"pool_type,omitempty"`
}
