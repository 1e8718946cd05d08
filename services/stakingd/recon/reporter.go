// Package recon materialises settlement reports for operator review. Each run
// joins the settlement journal against the ledger's view of the same window
// and writes CSV and Parquet artefacts plus any anomalies it found.
package recon

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"ravenstake/native/staking"
)

const (
	// AnomalyMissingOnLedger flags a confirmed settlement the ledger has no
	// record of.
	AnomalyMissingOnLedger = "missing_on_ledger"
	// AnomalyOutcomeMismatch flags a settlement whose journalled outcome
	// disagrees with the ledger.
	AnomalyOutcomeMismatch = "outcome_mismatch"
)

// Journal exposes the settlement window query the reporter depends on.
type Journal interface {
	SettlementsBetween(ctx context.Context, start, end int64) ([]staking.SettlementEntry, error)
}

// Config captures the dependencies required to construct a Reporter.
type Config struct {
	Journal   Journal
	Ledger    staking.RewardLedger
	OutputDir string
	Logger    *slog.Logger
	Now       func() time.Time
}

// Reporter generates settlement reconciliation reports.
type Reporter struct {
	journal   Journal
	ledger    staking.RewardLedger
	outputDir string
	logger    *slog.Logger
	now       func() time.Time
}

// Anomaly captures a journal/ledger disagreement requiring operator review.
type Anomaly struct {
	Type        string
	TransferRef string
	Details     string
}

// Result summarises a report run.
type Result struct {
	Start       int64
	End         int64
	Rows        int
	CSVPath     string
	ParquetPath string
	Anomalies   []Anomaly
}

// NewReporter builds a configured reporter.
func NewReporter(cfg Config) (*Reporter, error) {
	if cfg.Journal == nil {
		return nil, errors.New("recon: journal is required")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("recon: output dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reporter{
		journal:   cfg.Journal,
		ledger:    cfg.Ledger,
		outputDir: cfg.OutputDir,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// Run builds the report for settlements with settled_at in [start, end).
func (r *Reporter) Run(ctx context.Context, start, end int64) (*Result, error) {
	entries, err := r.journal.SettlementsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("recon: load settlements: %w", err)
	}
	result := &Result{Start: start, End: end, Rows: len(entries)}
	if r.ledger != nil {
		result.Anomalies = r.crossCheck(ctx, entries)
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("recon: create output dir: %w", err)
	}
	stamp := r.now().UTC().Format("20060102T150405Z")
	result.CSVPath = filepath.Join(r.outputDir, fmt.Sprintf("settlements-%s.csv", stamp))
	result.ParquetPath = filepath.Join(r.outputDir, fmt.Sprintf("settlements-%s.parquet", stamp))
	if err := writeCSV(result.CSVPath, entries); err != nil {
		return nil, err
	}
	if err := writeParquet(result.ParquetPath, entries); err != nil {
		return nil, err
	}
	r.logger.Info("reconciliation report written",
		"rows", result.Rows,
		"anomalies", len(result.Anomalies),
		"csv", result.CSVPath,
		"parquet", result.ParquetPath)
	return result, nil
}

// crossCheck asks the ledger for its record of every journalled transfer. A
// ledger that cannot be reached for a ref produces no anomaly; the next run
// checks again.
func (r *Reporter) crossCheck(ctx context.Context, entries []staking.SettlementEntry) []Anomaly {
	anomalies := make([]Anomaly, 0)
	for _, entry := range entries {
		outcome, err := r.ledger.TransferStatus(ctx, entry.TransferRef)
		if err != nil {
			r.logger.Warn("ledger status lookup failed", "ref", entry.TransferRef, "error", err)
			continue
		}
		switch {
		case entry.Outcome == "confirmed" && outcome == staking.TransferOutcomeNotFound:
			anomalies = append(anomalies, Anomaly{
				Type:        AnomalyMissingOnLedger,
				TransferRef: entry.TransferRef,
				Details:     fmt.Sprintf("journal confirmed %s units for %s but ledger has no record", entry.Amount, entry.Owner),
			})
		case entry.Outcome == "confirmed" && outcome == staking.TransferOutcomeFailed,
			entry.Outcome == "failed" && outcome == staking.TransferOutcomeConfirmed:
			anomalies = append(anomalies, Anomaly{
				Type:        AnomalyOutcomeMismatch,
				TransferRef: entry.TransferRef,
				Details:     fmt.Sprintf("journal says %s, ledger disagrees", entry.Outcome),
			})
		}
	}
	return anomalies
}

func writeCSV(path string, entries []staking.SettlementEntry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recon: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	header := []string{
		"transfer_ref", "collection", "asset_id", "owner", "amount", "operation", "outcome", "settled_at",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("recon: write csv header: %w", err)
	}
	for _, entry := range entries {
		record := []string{
			entry.TransferRef,
			entry.Collection,
			fmt.Sprintf("%d", entry.AssetID),
			entry.Owner,
			entry.Amount.String(),
			entry.Operation,
			entry.Outcome,
			time.Unix(entry.SettledAt, 0).UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("recon: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("recon: flush csv: %w", err)
	}
	return nil
}

type parquetRow struct {
	TransferRef string `parquet:"name=transfer_ref, type=BYTE_ARRAY, convertedtype=UTF8"`
	Collection  string `parquet:"name=collection, type=BYTE_ARRAY, convertedtype=UTF8"`
	AssetID     int64  `parquet:"name=asset_id, type=INT64"`
	Owner       string `parquet:"name=owner, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount      string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Operation   string `parquet:"name=operation, type=BYTE_ARRAY, convertedtype=UTF8"`
	Outcome     string `parquet:"name=outcome, type=BYTE_ARRAY, convertedtype=UTF8"`
	SettledAt   string `parquet:"name=settled_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func writeParquet(path string, entries []staking.SettlementEntry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recon: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("recon: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, entry := range entries {
		pr := &parquetRow{
			TransferRef: entry.TransferRef,
			Collection:  entry.Collection,
			AssetID:     int64(entry.AssetID),
			Owner:       entry.Owner,
			Amount:      entry.Amount.String(),
			Operation:   entry.Operation,
			Outcome:     entry.Outcome,
			SettledAt:   time.Unix(entry.SettledAt, 0).UTC().Format(time.RFC3339),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("recon: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("recon: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("recon: close parquet file: %w", err)
	}
	return nil
}
