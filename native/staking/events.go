package staking

import "math/big"

const (
	TypeStaked                  = "staking.staked"
	TypeClaimed                 = "staking.claimed"
	TypeUnstaked                = "staking.unstaked"
	TypeSettlementFailed        = "staking.settlement.failed"
	TypeSettlementIndeterminate = "staking.settlement.indeterminate"
	TypeSettlementReconciled    = "staking.settlement.reconciled"
	TypeCustodyReturnPending    = "staking.custody.return_pending"
)

// StakedEvent is emitted once a stake record has been created and custody of
// the asset secured.
type StakedEvent struct {
	Collection    string     `json:"collection"`
	AssetID       uint64     `json:"assetId"`
	Owner         string     `json:"owner"`
	Rarity        RarityTier `json:"rarity"`
	MultiplierBps uint32     `json:"multiplierBps"`
	StakedAt      int64      `json:"stakedAt"`
}

func (StakedEvent) EventType() string { return TypeStaked }

// ClaimedEvent is emitted after a claim settles successfully.
type ClaimedEvent struct {
	Collection  string   `json:"collection"`
	AssetID     uint64   `json:"assetId"`
	Owner       string   `json:"owner"`
	Amount      *big.Int `json:"amount"`
	TransferRef string   `json:"transferRef"`
	SettledAt   int64    `json:"settledAt"`
}

func (ClaimedEvent) EventType() string { return TypeClaimed }

// UnstakedEvent is emitted once final settlement and custody return complete.
type UnstakedEvent struct {
	Collection string   `json:"collection"`
	AssetID    uint64   `json:"assetId"`
	Owner      string   `json:"owner"`
	AmountPaid *big.Int `json:"amountPaid"`
	UnstakedAt int64    `json:"unstakedAt"`
}

func (UnstakedEvent) EventType() string { return TypeUnstaked }

// SettlementFailedEvent records a definitively rejected reward transfer. The
// accrual remains claimable.
type SettlementFailedEvent struct {
	Collection  string   `json:"collection"`
	AssetID     uint64   `json:"assetId"`
	Owner       string   `json:"owner"`
	Amount      *big.Int `json:"amount"`
	TransferRef string   `json:"transferRef"`
}

func (SettlementFailedEvent) EventType() string { return TypeSettlementFailed }

// SettlementIndeterminateEvent records a transfer whose outcome was never
// confirmed. The record stays reserved until reconciliation resolves it.
type SettlementIndeterminateEvent struct {
	Collection  string   `json:"collection"`
	AssetID     uint64   `json:"assetId"`
	Owner       string   `json:"owner"`
	Amount      *big.Int `json:"amount"`
	TransferRef string   `json:"transferRef"`
}

func (SettlementIndeterminateEvent) EventType() string { return TypeSettlementIndeterminate }

// SettlementReconciledEvent records the sweep resolving an indeterminate
// settlement against the external ledger's record of truth.
type SettlementReconciledEvent struct {
	Collection  string   `json:"collection"`
	AssetID     uint64   `json:"assetId"`
	Owner       string   `json:"owner"`
	Amount      *big.Int `json:"amount"`
	TransferRef string   `json:"transferRef"`
	Confirmed   bool     `json:"confirmed"`
}

func (SettlementReconciledEvent) EventType() string { return TypeSettlementReconciled }

// CustodyReturnPendingEvent records an unstake whose settlement succeeded but
// whose custody return failed; the record is retained until a retry succeeds.
type CustodyReturnPendingEvent struct {
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Owner      string `json:"owner"`
}

func (CustodyReturnPendingEvent) EventType() string { return TypeCustodyReturnPending }
