package staking

import "errors"

var (
	// ErrNotOwner is returned when the caller does not hold or did not stake the asset.
	ErrNotOwner = errors.New("staking: caller is not the owner")
	// ErrAlreadyStaked is returned when a stake record already exists for the asset.
	ErrAlreadyStaked = errors.New("staking: asset already staked")
	// ErrNotStaked is returned when no stake record exists for the asset.
	ErrNotStaked = errors.New("staking: asset not staked")
	// ErrAlreadyPending is returned when a settlement is already in flight for the asset.
	ErrAlreadyPending = errors.New("staking: settlement already pending")
	// ErrCustodyTransferFailed is returned when the custody service rejected a transfer.
	ErrCustodyTransferFailed = errors.New("staking: custody transfer failed")
	// ErrCustodyPending is returned when a record has settled but its custody
	// return has not yet completed.
	ErrCustodyPending = errors.New("staking: settled, custody return pending")
	// ErrTransferFailed is returned when the reward transfer was rejected. The
	// accrual is preserved and the caller may retry.
	ErrTransferFailed = errors.New("staking: reward transfer failed")
	// ErrTransferRejected is the definitive-failure signal ledger clients map
	// confirmed rejections onto. Anything else from a transfer call is treated
	// as indeterminate.
	ErrTransferRejected = errors.New("staking: transfer rejected by ledger")
	// ErrIndeterminate is returned when a transfer outcome was never confirmed.
	// Reconciliation must resolve the record before further settlement.
	ErrIndeterminate = errors.New("staking: settlement outcome indeterminate")
	// ErrRateLimited is returned when the engine refuses new settlement starts
	// to bound concurrent in-flight transfers.
	ErrRateLimited = errors.New("staking: settlement rate limited")
	// ErrUnknownRarity is returned when a rarity tier has no multiplier entry.
	ErrUnknownRarity = errors.New("staking: unknown rarity tier")
	// ErrInvalidOwner is returned when the owner identity is empty.
	ErrInvalidOwner = errors.New("staking: owner identity required")
	// ErrPaused is returned when the engine is administratively paused.
	ErrPaused = errors.New("staking: engine paused")
)
