package staking

import (
	"context"
	"sort"
)

// SweepResult summarises one bounded maintenance pass.
type SweepResult struct {
	// NextCursor resumes the next invocation; empty once the pass wrapped
	// around the full record set.
	NextCursor string
	Scanned    int
	Resolved   int
}

// Sweep runs one bounded batch of the maintenance pass. It scans records in
// deterministic key order starting after cursor and resolves any settlement
// left indeterminate, or any reservation that outlived the configured
// abandonment window, by consulting the external ledger's record of truth.
//
// The sweep uses the same per-asset serialisation as user-facing calls and
// never holds a lock across more than one record, so it is safe to run
// concurrently with Claim and Unstake.
func (e *Engine) Sweep(ctx context.Context, cursor string, batchSize int) (SweepResult, error) {
	if batchSize <= 0 {
		batchSize = 64
	}

	e.mu.RLock()
	keys := make([]AssetKey, 0, len(e.records))
	for key := range e.records {
		keys = append(keys, key)
	}
	e.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	start := 0
	if cursor != "" {
		start = sort.Search(len(keys), func(i int) bool { return keys[i].String() > cursor })
	}

	result := SweepResult{}
	for i := start; i < len(keys) && result.Scanned < batchSize; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		key := keys[i]
		result.Scanned++
		result.NextCursor = key.String()
		if e.reconcileRecord(ctx, key) {
			result.Resolved++
		}
	}
	if start+result.Scanned >= len(keys) {
		result.NextCursor = ""
	}
	return result, nil
}

// reconcileRecord resolves one record's pending settlement if it is eligible.
// Returns true when the record reached a terminal outcome.
func (e *Engine) reconcileRecord(ctx context.Context, key AssetKey) bool {
	release := e.locks.Acquire(key)
	defer release()

	now := e.now().Unix()

	e.mu.RLock()
	rec, ok := e.records[key]
	if !ok || rec.Pending == nil {
		e.mu.RUnlock()
		return false
	}
	pending := rec.Pending.Clone()
	owner := rec.Owner
	e.mu.RUnlock()

	stale := now-pending.ReservedAt >= int64(e.indeterminateAfter.Seconds())
	if !pending.Indeterminate && !stale {
		return false
	}
	if e.ledger == nil {
		return false
	}

	outcome, err := e.ledger.TransferStatus(ctx, pending.TransferRef)
	if err != nil {
		e.logger.Warn("reconcile: ledger status unavailable",
			"transfer_ref", pending.TransferRef, "error", err)
		return false
	}

	switch outcome {
	case TransferOutcomeConfirmed:
		e.confirmSettlement(ctx, key, owner, opSweep, pending.Amount, pending.TransferRef, pending.ReservedAt)
		e.metrics.RecordSweepResolution(outcomeConfirmed)
		e.emit(SettlementReconciledEvent{
			Collection:  key.Collection,
			AssetID:     key.AssetID,
			Owner:       owner,
			Amount:      copyBigInt(pending.Amount),
			TransferRef: pending.TransferRef,
			Confirmed:   true,
		})
		return true
	case TransferOutcomeFailed:
		e.rollbackSettlement(ctx, key, owner, opSweep, pending.Amount, pending.TransferRef, now)
		e.metrics.RecordSweepResolution(outcomeFailed)
		e.emit(SettlementReconciledEvent{
			Collection:  key.Collection,
			AssetID:     key.AssetID,
			Owner:       owner,
			Amount:      copyBigInt(pending.Amount),
			TransferRef: pending.TransferRef,
			Confirmed:   false,
		})
		return true
	case TransferOutcomeNotFound:
		// The ledger has no trace of the attempt. After the abandonment
		// window the conservative reading is failure: the amount stays
		// accruable rather than being double paid.
		if stale {
			e.rollbackSettlement(ctx, key, owner, opSweep, pending.Amount, pending.TransferRef, now)
			e.metrics.RecordSweepResolution("not_found")
			e.emit(SettlementReconciledEvent{
				Collection:  key.Collection,
				AssetID:     key.AssetID,
				Owner:       owner,
				Amount:      copyBigInt(pending.Amount),
				TransferRef: pending.TransferRef,
				Confirmed:   false,
			})
			return true
		}
		return false
	default:
		return false
	}
}
