package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"ravenstake/native/staking"
)

// Storage wraps the stakingd persistence layer. It implements staking.Store.
type Storage struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("stakingd storage path must be configured")

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRecord upserts a stake record.
func (s *Storage) SaveRecord(ctx context.Context, record *staking.StakeRecord) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if record == nil {
		return fmt.Errorf("record required")
	}
	var (
		pendingAmount        sql.NullString
		pendingRef           sql.NullString
		pendingSince         sql.NullInt64
		pendingIndeterminate bool
	)
	if record.Pending != nil {
		pendingAmount = sql.NullString{String: bigIntString(record.Pending.Amount), Valid: true}
		pendingRef = sql.NullString{String: record.Pending.TransferRef, Valid: true}
		pendingSince = sql.NullInt64{Int64: record.Pending.ReservedAt, Valid: true}
		pendingIndeterminate = record.Pending.Indeterminate
	}
	var custodySettled sql.NullString
	if record.CustodySettled != nil {
		custodySettled = sql.NullString{String: bigIntString(record.CustodySettled), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO stake_records(
            collection, asset_id, owner, rarity, multiplier_bps,
            staked_at, last_settled_at, accumulated_paid,
            pending_amount, pending_ref, pending_since, pending_indeterminate,
            custody_pending, custody_settled, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(collection, asset_id) DO UPDATE SET
            owner = excluded.owner,
            rarity = excluded.rarity,
            multiplier_bps = excluded.multiplier_bps,
            staked_at = excluded.staked_at,
            last_settled_at = excluded.last_settled_at,
            accumulated_paid = excluded.accumulated_paid,
            pending_amount = excluded.pending_amount,
            pending_ref = excluded.pending_ref,
            pending_since = excluded.pending_since,
            pending_indeterminate = excluded.pending_indeterminate,
            custody_pending = excluded.custody_pending,
            custody_settled = excluded.custody_settled,
            updated_at = excluded.updated_at
    `, record.Collection, record.AssetID, record.Owner, string(record.Rarity), record.MultiplierBps,
		record.StakedAt, record.LastSettledAt, bigIntString(record.AccumulatedPaid),
		pendingAmount, pendingRef, pendingSince, pendingIndeterminate,
		record.CustodyPending, custodySettled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert stake record: %w", err)
	}
	return nil
}

// DeleteRecord removes the record for an unstaked asset.
func (s *Storage) DeleteRecord(ctx context.Context, collection string, assetID uint64) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if _, err := s.db.ExecContext(ctx, `
        DELETE FROM stake_records WHERE collection = ? AND asset_id = ?
    `, collection, assetID); err != nil {
		return fmt.Errorf("delete stake record: %w", err)
	}
	return nil
}

// LoadRecords returns every persisted stake record.
func (s *Storage) LoadRecords(ctx context.Context) ([]*staking.StakeRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT collection, asset_id, owner, rarity, multiplier_bps,
               staked_at, last_settled_at, accumulated_paid,
               pending_amount, pending_ref, pending_since, pending_indeterminate,
               custody_pending, custody_settled
        FROM stake_records
    `)
	if err != nil {
		return nil, fmt.Errorf("query stake records: %w", err)
	}
	defer rows.Close()

	records := make([]*staking.StakeRecord, 0)
	for rows.Next() {
		var (
			rec                  staking.StakeRecord
			rarity               string
			accumulated          string
			pendingAmount        sql.NullString
			pendingRef           sql.NullString
			pendingSince         sql.NullInt64
			pendingIndeterminate bool
			custodySettled       sql.NullString
		)
		if err := rows.Scan(&rec.Collection, &rec.AssetID, &rec.Owner, &rarity, &rec.MultiplierBps,
			&rec.StakedAt, &rec.LastSettledAt, &accumulated,
			&pendingAmount, &pendingRef, &pendingSince, &pendingIndeterminate,
			&rec.CustodyPending, &custodySettled); err != nil {
			return nil, fmt.Errorf("scan stake record: %w", err)
		}
		rec.Rarity = staking.RarityTier(rarity)
		paid, err := parseBigInt(accumulated)
		if err != nil {
			return nil, fmt.Errorf("parse accumulated_paid: %w", err)
		}
		rec.AccumulatedPaid = paid
		if pendingRef.Valid {
			amount, err := parseBigInt(pendingAmount.String)
			if err != nil {
				return nil, fmt.Errorf("parse pending_amount: %w", err)
			}
			rec.Pending = &staking.PendingSettlement{
				Amount:        amount,
				TransferRef:   pendingRef.String,
				ReservedAt:    pendingSince.Int64,
				Indeterminate: pendingIndeterminate,
			}
		}
		if custodySettled.Valid {
			amount, err := parseBigInt(custodySettled.String)
			if err != nil {
				return nil, fmt.Errorf("parse custody_settled: %w", err)
			}
			rec.CustodySettled = amount
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stake records: %w", err)
	}
	return records, nil
}

// SaveAggregate upserts an owner aggregate.
func (s *Storage) SaveAggregate(ctx context.Context, agg *staking.OwnerAggregate) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if agg == nil {
		return fmt.Errorf("aggregate required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO owner_aggregates(owner, total_staked, total_rewards_earned, last_updated_at)
        VALUES(?, ?, ?, ?)
        ON CONFLICT(owner) DO UPDATE SET
            total_staked = excluded.total_staked,
            total_rewards_earned = excluded.total_rewards_earned,
            last_updated_at = excluded.last_updated_at
    `, agg.Owner, agg.TotalStaked, bigIntString(agg.TotalRewardsEarned), agg.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert owner aggregate: %w", err)
	}
	return nil
}

// LoadAggregates returns every persisted owner aggregate.
func (s *Storage) LoadAggregates(ctx context.Context) ([]*staking.OwnerAggregate, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT owner, total_staked, total_rewards_earned, last_updated_at
        FROM owner_aggregates
    `)
	if err != nil {
		return nil, fmt.Errorf("query owner aggregates: %w", err)
	}
	defer rows.Close()

	aggregates := make([]*staking.OwnerAggregate, 0)
	for rows.Next() {
		var (
			agg    staking.OwnerAggregate
			earned string
		)
		if err := rows.Scan(&agg.Owner, &agg.TotalStaked, &earned, &agg.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan owner aggregate: %w", err)
		}
		parsed, err := parseBigInt(earned)
		if err != nil {
			return nil, fmt.Errorf("parse total_rewards_earned: %w", err)
		}
		agg.TotalRewardsEarned = parsed
		aggregates = append(aggregates, &agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owner aggregates: %w", err)
	}
	return aggregates, nil
}

// AppendSettlement records one terminal settlement outcome in the journal.
func (s *Storage) AppendSettlement(ctx context.Context, entry staking.SettlementEntry) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO settlement_journal(
            transfer_ref, collection, asset_id, owner, amount, operation, outcome, settled_at, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, entry.TransferRef, entry.Collection, entry.AssetID, entry.Owner,
		bigIntString(entry.Amount), entry.Operation, entry.Outcome, entry.SettledAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append settlement journal: %w", err)
	}
	return nil
}

// SettlementsBetween returns journal entries with settled_at in [start, end),
// oldest first. Reconciliation reports are built from this window.
func (s *Storage) SettlementsBetween(ctx context.Context, start, end int64) ([]staking.SettlementEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT transfer_ref, collection, asset_id, owner, amount, operation, outcome, settled_at
        FROM settlement_journal
        WHERE settled_at >= ? AND settled_at < ?
        ORDER BY settled_at ASC, id ASC
    `, start, end)
	if err != nil {
		return nil, fmt.Errorf("query settlement journal: %w", err)
	}
	defer rows.Close()

	entries := make([]staking.SettlementEntry, 0)
	for rows.Next() {
		var (
			entry  staking.SettlementEntry
			amount string
		)
		if err := rows.Scan(&entry.TransferRef, &entry.Collection, &entry.AssetID, &entry.Owner,
			&amount, &entry.Operation, &entry.Outcome, &entry.SettledAt); err != nil {
			return nil, fmt.Errorf("scan settlement entry: %w", err)
		}
		parsed, err := parseBigInt(amount)
		if err != nil {
			return nil, fmt.Errorf("parse settlement amount: %w", err)
		}
		entry.Amount = parsed
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement journal: %w", err)
	}
	return entries, nil
}

func bigIntString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBigInt(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", raw)
	}
	return parsed, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS stake_records (
    collection TEXT NOT NULL,
    asset_id INTEGER NOT NULL,
    owner TEXT NOT NULL,
    rarity TEXT NOT NULL,
    multiplier_bps INTEGER NOT NULL,
    staked_at INTEGER NOT NULL,
    last_settled_at INTEGER NOT NULL,
    accumulated_paid TEXT NOT NULL,
    pending_amount TEXT,
    pending_ref TEXT,
    pending_since INTEGER,
    pending_indeterminate INTEGER NOT NULL DEFAULT 0,
    custody_pending INTEGER NOT NULL DEFAULT 0,
    custody_settled TEXT,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (collection, asset_id)
);
CREATE INDEX IF NOT EXISTS idx_stake_records_owner ON stake_records(owner);

CREATE TABLE IF NOT EXISTS owner_aggregates (
    owner TEXT PRIMARY KEY,
    total_staked INTEGER NOT NULL,
    total_rewards_earned TEXT NOT NULL,
    last_updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settlement_journal (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    transfer_ref TEXT NOT NULL,
    collection TEXT NOT NULL,
    asset_id INTEGER NOT NULL,
    owner TEXT NOT NULL,
    amount TEXT NOT NULL,
    operation TEXT NOT NULL,
    outcome TEXT NOT NULL,
    settled_at INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_settlement_journal_settled ON settlement_journal(settled_at);
CREATE INDEX IF NOT EXISTS idx_settlement_journal_ref ON settlement_journal(transfer_ref);
`
