package staking

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// RarityTier identifies the rarity bucket an asset belongs to. The tier is
// resolved to a basis-point multiplier once, at stake time, so later changes to
// the rarity table never alter the payout rate of an already staked asset.
type RarityTier string

const (
	RarityCommon    RarityTier = "common"
	RarityRare      RarityTier = "rare"
	RarityEpic      RarityTier = "epic"
	RarityLegendary RarityTier = "legendary"
)

// ParseRarityTier normalises the supplied tier label.
func ParseRarityTier(raw string) (RarityTier, error) {
	tier := RarityTier(strings.ToLower(strings.TrimSpace(raw)))
	switch tier {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return tier, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRarity, raw)
}

// AssetKey identifies a non-fungible asset within a collection.
type AssetKey struct {
	Collection string
	AssetID    uint64
}

// String renders the key in the canonical "collection/assetID" form used by
// sweep cursors and log attributes.
func (k AssetKey) String() string {
	return fmt.Sprintf("%s/%d", k.Collection, k.AssetID)
}

// Hash derives the canonical 32-byte asset identifier. The custody service
// addresses assets by this digest; collection labels are lowercased first so
// the digest is insensitive to label casing.
func (k AssetKey) Hash() [32]byte {
	var out [32]byte
	payload := fmt.Sprintf("stake|%s|%d", strings.ToLower(k.Collection), k.AssetID)
	copy(out[:], ethcrypto.Keccak256([]byte(payload)))
	return out
}

// PendingSettlement marks an in-flight settlement on a record. While set, no
// further settlement may start on the same record. Indeterminate flags a
// transfer whose outcome was never confirmed; only reconciliation may resolve
// it.
type PendingSettlement struct {
	Amount        *big.Int `json:"amount"`
	TransferRef   string   `json:"transferRef"`
	ReservedAt    int64    `json:"reservedAt"`
	Indeterminate bool     `json:"indeterminate"`
}

// Clone returns a deep copy of the pending marker.
func (p *PendingSettlement) Clone() *PendingSettlement {
	if p == nil {
		return nil
	}
	return &PendingSettlement{
		Amount:        copyBigInt(p.Amount),
		TransferRef:   p.TransferRef,
		ReservedAt:    p.ReservedAt,
		Indeterminate: p.Indeterminate,
	}
}

// StakeRecord is the authoritative state for one staked asset. Exactly one
// record exists per asset while it is staked.
type StakeRecord struct {
	Collection      string             `json:"collection"`
	AssetID         uint64             `json:"assetId"`
	Owner           string             `json:"owner"`
	Rarity          RarityTier         `json:"rarity"`
	MultiplierBps   uint32             `json:"multiplierBps"`
	StakedAt        int64              `json:"stakedAt"`
	LastSettledAt   int64              `json:"lastSettledAt"`
	AccumulatedPaid *big.Int           `json:"accumulatedPaid"`
	Pending         *PendingSettlement `json:"pending,omitempty"`

	// CustodyPending marks a record whose final settlement succeeded but
	// whose custody return failed. The record is retained so the asset is
	// never stranded without a trace of its whereabouts.
	CustodyPending bool `json:"custodyPending,omitempty"`

	// CustodySettled is the residual amount settled by the unstake whose
	// custody return failed. Retries report this figure, not the record's
	// lifetime payout.
	CustodySettled *big.Int `json:"custodySettled,omitempty"`

	// PendingAccrual is a display-only figure computed at query time. It is
	// never persisted and never feeds settlement.
	PendingAccrual *big.Int `json:"pendingAccrual,omitempty"`
}

// Key returns the asset key for the record.
func (r *StakeRecord) Key() AssetKey {
	if r == nil {
		return AssetKey{}
	}
	return AssetKey{Collection: r.Collection, AssetID: r.AssetID}
}

// Clone produces a deep copy so readers never observe partial writes.
func (r *StakeRecord) Clone() *StakeRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.AccumulatedPaid = copyBigInt(r.AccumulatedPaid)
	clone.Pending = r.Pending.Clone()
	clone.PendingAccrual = nil
	if r.PendingAccrual != nil {
		clone.PendingAccrual = copyBigInt(r.PendingAccrual)
	}
	if r.CustodySettled != nil {
		clone.CustodySettled = copyBigInt(r.CustodySettled)
	}
	return &clone
}

// OwnerAggregate accumulates all-time earnings per owner. Aggregates are
// created lazily on first stake and never deleted, so the leaderboard ranks
// all-time earners rather than current stakes.
type OwnerAggregate struct {
	Owner              string   `json:"owner"`
	TotalStaked        uint32   `json:"totalStaked"`
	TotalRewardsEarned *big.Int `json:"totalRewardsEarned"`
	LastUpdatedAt      int64    `json:"lastUpdatedAt"`
}

// Clone returns a deep copy of the aggregate.
func (a *OwnerAggregate) Clone() *OwnerAggregate {
	if a == nil {
		return nil
	}
	clone := *a
	clone.TotalRewardsEarned = copyBigInt(a.TotalRewardsEarned)
	return &clone
}

// LeaderboardEntry pairs an aggregate with its derived rank. Rank is assigned
// at query time and never stored.
type LeaderboardEntry struct {
	Owner              string   `json:"owner"`
	TotalStaked        uint32   `json:"totalStaked"`
	TotalRewardsEarned *big.Int `json:"totalRewardsEarned"`
	Rank               uint32   `json:"rank"`
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
