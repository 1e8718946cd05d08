package staking

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ravenstake/core/events"
	"ravenstake/observability"
)

// CustodyService is the external collaborator holding authority over asset
// transferability. Calls can fail or time out; the engine never assumes an
// outcome that was not confirmed.
type CustodyService interface {
	VerifyHolder(ctx context.Context, collection string, assetID uint64) (string, error)
	TransferCustody(ctx context.Context, collection string, assetID uint64, from, to string) error
}

// RewardLedger is the external service that actually moves reward balances.
// Transfer must be idempotent on ref so reconciliation can query the outcome
// of an interrupted call. Implementations map confirmed rejections onto
// ErrTransferRejected; any other error is treated as indeterminate.
type RewardLedger interface {
	Transfer(ctx context.Context, to string, amount *big.Int, ref string) error
	TransferStatus(ctx context.Context, ref string) (TransferOutcome, error)
}

// TransferOutcome reports the external ledger's record of a transfer.
type TransferOutcome uint8

const (
	// TransferOutcomeUnknown means the ledger could not be consulted.
	TransferOutcomeUnknown TransferOutcome = iota
	// TransferOutcomeConfirmed means the ledger recorded the transfer.
	TransferOutcomeConfirmed
	// TransferOutcomeFailed means the ledger recorded a rejection.
	TransferOutcomeFailed
	// TransferOutcomeNotFound means the ledger has no record of the ref.
	TransferOutcomeNotFound
)

// SettlementEntry is the journal row appended for every terminal settlement
// outcome. The journal is the audit trail reconciliation reports are built
// from.
type SettlementEntry struct {
	TransferRef string
	Collection  string
	AssetID     uint64
	Owner       string
	Amount      *big.Int
	Operation   string
	Outcome     string
	SettledAt   int64
}

// Store persists engine state. The engine is the single writer; the store is
// hydrated once at startup and written through on every committed mutation.
type Store interface {
	SaveRecord(ctx context.Context, record *StakeRecord) error
	DeleteRecord(ctx context.Context, collection string, assetID uint64) error
	LoadRecords(ctx context.Context) ([]*StakeRecord, error)
	SaveAggregate(ctx context.Context, agg *OwnerAggregate) error
	LoadAggregates(ctx context.Context) ([]*OwnerAggregate, error)
	AppendSettlement(ctx context.Context, entry SettlementEntry) error
}

const (
	opStake   = "stake"
	opClaim   = "claim"
	opUnstake = "unstake"
	opSweep   = "sweep"

	outcomeConfirmed     = "confirmed"
	outcomeFailed        = "failed"
	outcomeIndeterminate = "indeterminate"

	defaultMaxInFlight        = 32
	defaultIndeterminateAfter = 10 * time.Minute
)

// Engine owns all StakeRecords and OwnerAggregates. Every state-mutating
// operation on a given asset is serialised through a keyed lock, and every
// field write is committed atomically relative to readers, so read-only
// queries may observe slightly stale but never partially written state.
type Engine struct {
	mu         sync.RWMutex
	records    map[AssetKey]*StakeRecord
	aggregates map[string]*OwnerAggregate

	locks  *keyedMutex
	params RewardParams

	custody CustodyService
	ledger  RewardLedger
	store   Store
	emitter events.Emitter

	vaultAccount string
	nowFn        func() time.Time
	metrics      *observability.StakingMetrics
	tracer       trace.Tracer
	logger       *slog.Logger

	settleSlots        chan struct{}
	indeterminateAfter time.Duration
	paused             bool
}

// Option customises the engine.
type Option func(*Engine)

// WithCustody supplies the custody service client.
func WithCustody(c CustodyService) Option {
	return func(e *Engine) { e.custody = c }
}

// WithLedger supplies the reward ledger client.
func WithLedger(l RewardLedger) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithStore supplies the persistence backend.
func WithStore(s Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithEmitter supplies the event emitter. Passing nil keeps the no-op emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithClock overrides the time source. Primarily intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.nowFn = now
		}
	}
}

// WithVaultAccount sets the custody identity the engine stakes assets into.
func WithVaultAccount(account string) Option {
	return func(e *Engine) { e.vaultAccount = strings.TrimSpace(account) }
}

// WithMaxInFlight bounds concurrent in-flight reward transfers. Settlement
// starts beyond the bound are refused with ErrRateLimited.
func WithMaxInFlight(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.settleSlots = make(chan struct{}, n)
		}
	}
}

// WithIndeterminateAfter sets how long a non-indeterminate reservation may
// linger before the sweep treats it as abandoned and reconciles it.
func WithIndeterminateAfter(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.indeterminateAfter = d
		}
	}
}

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics overrides the metrics registry. Tests pass nil-safe custom
// registries to avoid double registration.
func WithMetrics(m *observability.StakingMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine constructs the engine after validating the reward parameters.
func NewEngine(params RewardParams, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		records:            make(map[AssetKey]*StakeRecord),
		aggregates:         make(map[string]*OwnerAggregate),
		locks:              newKeyedMutex(),
		params:             params.Clone(),
		emitter:            events.NoopEmitter{},
		vaultAccount:       "stake-vault",
		nowFn:              time.Now,
		tracer:             otel.Tracer("ravenstake/staking"),
		logger:             slog.Default(),
		settleSlots:        make(chan struct{}, defaultMaxInFlight),
		indeterminateAfter: defaultIndeterminateAfter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Hydrate loads persisted records and aggregates into memory. It must be
// called before the engine serves traffic when a store is configured.
func (e *Engine) Hydrate(ctx context.Context) error {
	if e == nil || e.store == nil {
		return nil
	}
	records, err := e.store.LoadRecords(ctx)
	if err != nil {
		return err
	}
	aggregates, err := e.store.LoadAggregates(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range records {
		if rec == nil {
			continue
		}
		e.records[rec.Key()] = rec.Clone()
	}
	for _, agg := range aggregates {
		if agg == nil || strings.TrimSpace(agg.Owner) == "" {
			continue
		}
		e.aggregates[agg.Owner] = agg.Clone()
	}
	e.metrics.SetStakedAssets(len(e.records))
	return nil
}

// Params returns a copy of the active reward parameters.
func (e *Engine) Params() RewardParams {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params.Clone()
}

// SetParams swaps the reward parameters after validation. Multipliers of
// already staked assets are unaffected; they were fixed at stake time.
func (e *Engine) SetParams(params RewardParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.params = params.Clone()
	e.mu.Unlock()
	return nil
}

// Pause stops the engine accepting new state-mutating operations.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

// Resume re-enables state-mutating operations.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
}

// StakedCount reports the number of active stake records.
func (e *Engine) StakedCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.records)
}

func (e *Engine) now() time.Time {
	if e == nil || e.nowFn == nil {
		return time.Now()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) isPaused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// Stake verifies ownership via the custody service, takes custody of the
// asset, and creates the stake record. Custody transfer and record creation
// are atomic from the caller's perspective: if custody fails no record exists.
func (e *Engine) Stake(ctx context.Context, owner, collection string, assetID uint64, rarity RarityTier) (*StakeRecord, error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "staking.stake",
		trace.WithAttributes(
			attribute.String("stake.collection", collection),
			attribute.Int64("stake.asset_id", int64(assetID)),
		))
	defer span.End()

	record, err := e.stake(ctx, owner, collection, assetID, rarity)
	e.metrics.Observe(opStake, e.now().Sub(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.RecordError(opStake, errorKind(err))
		return nil, err
	}
	span.SetStatus(codes.Ok, "staked")
	return record, nil
}

func (e *Engine) stake(ctx context.Context, owner, collection string, assetID uint64, rarity RarityTier) (*StakeRecord, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, ErrInvalidOwner
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, errors.New("staking: collection required")
	}
	if e.isPaused() {
		return nil, ErrPaused
	}
	multiplier, err := e.Params().MultiplierBps(rarity)
	if err != nil {
		return nil, err
	}
	if e.custody == nil {
		return nil, errors.New("staking: custody service not configured")
	}

	key := AssetKey{Collection: collection, AssetID: assetID}
	release := e.locks.Acquire(key)
	defer release()

	e.mu.RLock()
	_, exists := e.records[key]
	e.mu.RUnlock()
	if exists {
		return nil, ErrAlreadyStaked
	}

	holder, err := e.custody.VerifyHolder(ctx, collection, assetID)
	if err != nil {
		return nil, errors.Join(ErrCustodyTransferFailed, err)
	}
	if holder != owner {
		return nil, ErrNotOwner
	}
	if err := e.custody.TransferCustody(ctx, collection, assetID, owner, e.vaultAccount); err != nil {
		return nil, errors.Join(ErrCustodyTransferFailed, err)
	}

	now := e.now().Unix()
	record := &StakeRecord{
		Collection:      collection,
		AssetID:         assetID,
		Owner:           owner,
		Rarity:          rarity,
		MultiplierBps:   multiplier,
		StakedAt:        now,
		LastSettledAt:   now,
		AccumulatedPaid: big.NewInt(0),
	}

	e.mu.Lock()
	e.records[key] = record
	agg := e.aggregateLocked(owner)
	agg.TotalStaked++
	agg.LastUpdatedAt = now
	aggSnapshot := agg.Clone()
	recordSnapshot := record.Clone()
	staked := len(e.records)
	e.mu.Unlock()

	e.persistRecord(ctx, recordSnapshot)
	e.persistAggregate(ctx, aggSnapshot)
	e.metrics.SetStakedAssets(staked)
	e.emit(StakedEvent{
		Collection:    collection,
		AssetID:       assetID,
		Owner:         owner,
		Rarity:        rarity,
		MultiplierBps: multiplier,
		StakedAt:      now,
	})
	return recordSnapshot, nil
}

// Claim settles the accrued reward for a staked asset and transfers it to the
// owner. A zero accrual is an idempotent no-op.
func (e *Engine) Claim(ctx context.Context, owner, collection string, assetID uint64) (*big.Int, error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "staking.claim",
		trace.WithAttributes(
			attribute.String("stake.collection", collection),
			attribute.Int64("stake.asset_id", int64(assetID)),
		))
	defer span.End()

	key := AssetKey{Collection: collection, AssetID: assetID}
	release := e.locks.Acquire(key)
	defer release()

	amount, err := e.settleLocked(ctx, key, owner, opClaim)
	e.metrics.Observe(opClaim, e.now().Sub(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.RecordError(opClaim, errorKind(err))
		return nil, err
	}
	span.SetStatus(codes.Ok, "claimed")
	return amount, nil
}

// Unstake settles any residual accrual, returns custody of the asset, and
// deletes the stake record. If custody return fails after a successful
// settlement the record is retained in a terminal custody-pending state;
// calling Unstake again retries only the custody return.
func (e *Engine) Unstake(ctx context.Context, owner, collection string, assetID uint64) (*big.Int, error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "staking.unstake",
		trace.WithAttributes(
			attribute.String("stake.collection", collection),
			attribute.Int64("stake.asset_id", int64(assetID)),
		))
	defer span.End()

	key := AssetKey{Collection: collection, AssetID: assetID}
	release := e.locks.Acquire(key)
	defer release()

	amount, err := e.unstakeLocked(ctx, key, owner)
	e.metrics.Observe(opUnstake, e.now().Sub(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.RecordError(opUnstake, errorKind(err))
		return amount, err
	}
	span.SetStatus(codes.Ok, "unstaked")
	return amount, nil
}

func (e *Engine) unstakeLocked(ctx context.Context, key AssetKey, owner string) (*big.Int, error) {
	e.mu.RLock()
	rec, ok := e.records[key]
	var custodyPending bool
	var custodySettled *big.Int
	if ok {
		custodyPending = rec.CustodyPending
		custodySettled = copyBigInt(rec.CustodySettled)
		if rec.Owner != owner {
			e.mu.RUnlock()
			return nil, ErrNotOwner
		}
	}
	e.mu.RUnlock()
	if !ok {
		return nil, ErrNotStaked
	}

	settled := big.NewInt(0)
	if !custodyPending {
		amount, err := e.settleLocked(ctx, key, owner, opUnstake)
		if err != nil {
			return nil, err
		}
		settled = amount
	} else {
		// Final settlement already happened on a prior attempt; report the
		// residual that attempt paid out, not the lifetime total.
		settled = custodySettled
	}

	if e.custody == nil {
		return settled, errors.Join(ErrCustodyTransferFailed, errors.New("custody service not configured"))
	}
	if err := e.custody.TransferCustody(ctx, key.Collection, key.AssetID, e.vaultAccount, owner); err != nil {
		e.mu.Lock()
		if rec, ok := e.records[key]; ok {
			rec.CustodyPending = true
			rec.CustodySettled = copyBigInt(settled)
			e.persistRecordLocked(ctx, rec)
		}
		e.mu.Unlock()
		e.emit(CustodyReturnPendingEvent{Collection: key.Collection, AssetID: key.AssetID, Owner: owner})
		e.logger.Warn("custody return failed, record retained",
			"collection", key.Collection, "asset_id", key.AssetID, "owner", owner, "error", err)
		return settled, errors.Join(ErrCustodyTransferFailed, err)
	}

	now := e.now().Unix()
	e.mu.Lock()
	delete(e.records, key)
	agg := e.aggregateLocked(owner)
	if agg.TotalStaked > 0 {
		agg.TotalStaked--
	}
	agg.LastUpdatedAt = now
	aggSnapshot := agg.Clone()
	staked := len(e.records)
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.DeleteRecord(ctx, key.Collection, key.AssetID); err != nil {
			e.logger.Error("delete stake record", "collection", key.Collection, "asset_id", key.AssetID, "error", err)
		}
	}
	e.persistAggregate(ctx, aggSnapshot)
	e.metrics.SetStakedAssets(staked)
	e.emit(UnstakedEvent{
		Collection: key.Collection,
		AssetID:    key.AssetID,
		Owner:      owner,
		AmountPaid: settled,
		UnstakedAt: now,
	})
	return settled, nil
}

// settleLocked runs the reservation/confirm/rollback sequence for one record.
// The caller must hold the per-asset lock. Local state is written strictly
// before the external transfer (reservation) or strictly after it resolves
// (confirmation or rollback), never interleaved with it.
func (e *Engine) settleLocked(ctx context.Context, key AssetKey, owner, operation string) (*big.Int, error) {
	if e.isPaused() {
		return nil, ErrPaused
	}
	now := e.now().Unix()

	e.mu.RLock()
	rec, ok := e.records[key]
	if !ok {
		e.mu.RUnlock()
		return nil, ErrNotStaked
	}
	if rec.Owner != owner {
		e.mu.RUnlock()
		return nil, ErrNotOwner
	}
	if rec.CustodyPending {
		e.mu.RUnlock()
		return nil, ErrCustodyPending
	}
	if rec.Pending != nil {
		indeterminate := rec.Pending.Indeterminate
		e.mu.RUnlock()
		e.metrics.RecordPendingRefusal()
		if indeterminate {
			return nil, ErrIndeterminate
		}
		return nil, ErrAlreadyPending
	}
	params := e.params
	e.mu.RUnlock()

	if rec.LastSettledAt > now {
		// A watermark in the future indicates a bug, not a recoverable
		// runtime condition. Refuse settlement and page the operator.
		e.logger.Error("invariant violation: settlement watermark ahead of clock",
			"collection", key.Collection, "asset_id", key.AssetID,
			"last_settled_at", rec.LastSettledAt, "now", now)
		return nil, errors.New("staking: corrupt record, settlement watermark ahead of clock")
	}

	amount := Accrued(params, rec, now)
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if e.ledger == nil {
		return nil, errors.New("staking: reward ledger not configured")
	}

	select {
	case e.settleSlots <- struct{}{}:
	default:
		return nil, ErrRateLimited
	}
	defer func() { <-e.settleSlots }()
	e.metrics.SettlementStarted()
	defer e.metrics.SettlementFinished()

	ref := uuid.NewString()
	reservation := &PendingSettlement{Amount: copyBigInt(amount), TransferRef: ref, ReservedAt: now}

	e.mu.Lock()
	rec.Pending = reservation
	e.mu.Unlock()
	// The reservation must be durable before the external call so a crash
	// mid-transfer leaves a reconcilable marker rather than a lost payment.
	if e.store != nil {
		if err := e.store.SaveRecord(ctx, e.snapshot(key)); err != nil {
			e.mu.Lock()
			rec.Pending = nil
			e.mu.Unlock()
			return nil, err
		}
	}

	transferErr := e.ledger.Transfer(ctx, owner, amount, ref)
	switch {
	case transferErr == nil:
		e.confirmSettlement(ctx, key, owner, operation, amount, ref, now)
		return copyBigInt(amount), nil
	case errors.Is(transferErr, ErrTransferRejected):
		e.rollbackSettlement(ctx, key, owner, operation, amount, ref, now)
		return nil, errors.Join(ErrTransferFailed, transferErr)
	default:
		// No confirmation either way: keep the reservation and surface
		// indeterminate. Only the sweep may resolve this record.
		e.mu.Lock()
		rec.Pending.Indeterminate = true
		e.mu.Unlock()
		e.persistRecord(ctx, e.snapshot(key))
		e.journal(ctx, SettlementEntry{
			TransferRef: ref,
			Collection:  key.Collection,
			AssetID:     key.AssetID,
			Owner:       owner,
			Amount:      copyBigInt(amount),
			Operation:   operation,
			Outcome:     outcomeIndeterminate,
			SettledAt:   now,
		})
		e.emit(SettlementIndeterminateEvent{
			Collection:  key.Collection,
			AssetID:     key.AssetID,
			Owner:       owner,
			Amount:      copyBigInt(amount),
			TransferRef: ref,
		})
		e.logger.Warn("transfer outcome indeterminate",
			"collection", key.Collection, "asset_id", key.AssetID,
			"transfer_ref", ref, "error", transferErr)
		return nil, errors.Join(ErrIndeterminate, transferErr)
	}
}

// confirmSettlement commits a confirmed payout: advances the settlement
// watermark, bumps the monotonic counters, and updates the owner aggregate.
func (e *Engine) confirmSettlement(ctx context.Context, key AssetKey, owner, operation string, amount *big.Int, ref string, settledAt int64) {
	e.mu.Lock()
	rec, ok := e.records[key]
	if !ok {
		e.mu.Unlock()
		return
	}
	rec.AccumulatedPaid.Add(rec.AccumulatedPaid, amount)
	rec.LastSettledAt = settledAt
	rec.Pending = nil
	agg := e.aggregateLocked(owner)
	agg.TotalRewardsEarned.Add(agg.TotalRewardsEarned, amount)
	agg.LastUpdatedAt = settledAt
	recSnapshot := rec.Clone()
	aggSnapshot := agg.Clone()
	e.mu.Unlock()

	e.persistRecord(ctx, recSnapshot)
	e.persistAggregate(ctx, aggSnapshot)
	e.journal(ctx, SettlementEntry{
		TransferRef: ref,
		Collection:  key.Collection,
		AssetID:     key.AssetID,
		Owner:       owner,
		Amount:      copyBigInt(amount),
		Operation:   operation,
		Outcome:     outcomeConfirmed,
		SettledAt:   settledAt,
	})
	amountFloat, _ := new(big.Float).SetInt(amount).Float64()
	e.metrics.AddRewardsPaid(amountFloat)
	if operation == opClaim {
		e.emit(ClaimedEvent{
			Collection:  key.Collection,
			AssetID:     key.AssetID,
			Owner:       owner,
			Amount:      copyBigInt(amount),
			TransferRef: ref,
			SettledAt:   settledAt,
		})
	}
}

// rollbackSettlement clears the reservation without advancing the watermark,
// so the amount stays accruable and the caller may retry.
func (e *Engine) rollbackSettlement(ctx context.Context, key AssetKey, owner, operation string, amount *big.Int, ref string, settledAt int64) {
	e.mu.Lock()
	rec, ok := e.records[key]
	if ok {
		rec.Pending = nil
	}
	e.mu.Unlock()
	if ok {
		e.persistRecord(ctx, e.snapshot(key))
	}
	e.journal(ctx, SettlementEntry{
		TransferRef: ref,
		Collection:  key.Collection,
		AssetID:     key.AssetID,
		Owner:       owner,
		Amount:      copyBigInt(amount),
		Operation:   operation,
		Outcome:     outcomeFailed,
		SettledAt:   settledAt,
	})
	e.emit(SettlementFailedEvent{
		Collection:  key.Collection,
		AssetID:     key.AssetID,
		Owner:       owner,
		Amount:      copyBigInt(amount),
		TransferRef: ref,
	})
}

// GetStaked returns the caller's stake records with a display-only pending
// accrual figure. It never mutates settlement state.
func (e *Engine) GetStaked(owner string) []*StakeRecord {
	now := e.now().Unix()
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*StakeRecord, 0)
	for _, rec := range e.records {
		if rec.Owner != owner {
			continue
		}
		clone := rec.Clone()
		clone.PendingAccrual = e.pendingAccrualLocked(rec, now)
		out = append(out, clone)
	}
	return out
}

// PendingRewards sums the informational accrual over all of the owner's
// records without mutating any watermark.
func (e *Engine) PendingRewards(owner string) *big.Int {
	now := e.now().Unix()
	total := big.NewInt(0)
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, rec := range e.records {
		if rec.Owner != owner {
			continue
		}
		total.Add(total, e.pendingAccrualLocked(rec, now))
	}
	return total
}

func (e *Engine) pendingAccrualLocked(rec *StakeRecord, now int64) *big.Int {
	if rec == nil || rec.CustodyPending {
		return big.NewInt(0)
	}
	return Accrued(e.params, rec, now)
}

// aggregateLocked returns the owner aggregate, creating it lazily. Callers
// must hold e.mu.
func (e *Engine) aggregateLocked(owner string) *OwnerAggregate {
	agg, ok := e.aggregates[owner]
	if !ok {
		agg = &OwnerAggregate{Owner: owner, TotalRewardsEarned: big.NewInt(0)}
		e.aggregates[owner] = agg
	}
	if agg.TotalRewardsEarned == nil {
		agg.TotalRewardsEarned = big.NewInt(0)
	}
	return agg
}

// snapshot clones the record under the read lock for persistence.
func (e *Engine) snapshot(key AssetKey) *StakeRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.records[key].Clone()
}

func (e *Engine) persistRecord(ctx context.Context, rec *StakeRecord) {
	if e.store == nil || rec == nil {
		return
	}
	if err := e.store.SaveRecord(ctx, rec); err != nil {
		e.logger.Error("persist stake record",
			"collection", rec.Collection, "asset_id", rec.AssetID, "error", err)
	}
}

// persistRecordLocked persists while e.mu is held; the clone is taken inline.
func (e *Engine) persistRecordLocked(ctx context.Context, rec *StakeRecord) {
	if e.store == nil || rec == nil {
		return
	}
	if err := e.store.SaveRecord(ctx, rec.Clone()); err != nil {
		e.logger.Error("persist stake record",
			"collection", rec.Collection, "asset_id", rec.AssetID, "error", err)
	}
}

func (e *Engine) persistAggregate(ctx context.Context, agg *OwnerAggregate) {
	if e.store == nil || agg == nil {
		return
	}
	if err := e.store.SaveAggregate(ctx, agg); err != nil {
		e.logger.Error("persist owner aggregate", "owner", agg.Owner, "error", err)
	}
}

func (e *Engine) journal(ctx context.Context, entry SettlementEntry) {
	if e.store == nil {
		return
	}
	if err := e.store.AppendSettlement(ctx, entry); err != nil {
		e.logger.Error("append settlement journal", "transfer_ref", entry.TransferRef, "error", err)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrAlreadyStaked):
		return "already_staked"
	case errors.Is(err, ErrNotStaked):
		return "not_staked"
	case errors.Is(err, ErrAlreadyPending):
		return "already_pending"
	case errors.Is(err, ErrCustodyPending):
		return "custody_pending"
	case errors.Is(err, ErrCustodyTransferFailed):
		return "custody_transfer_failed"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrIndeterminate):
		return "indeterminate"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrPaused):
		return "paused"
	case errors.Is(err, ErrUnknownRarity):
		return "unknown_rarity"
	case errors.Is(err, ErrInvalidOwner):
		return "invalid_owner"
	default:
		return "internal"
	}
}
