package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"ravenstake/native/staking"
	"ravenstake/observability"
	"ravenstake/observability/logging"
	telemetry "ravenstake/observability/otel"
	"ravenstake/services/stakingd/config"
	"ravenstake/services/stakingd/cursor"
	"ravenstake/services/stakingd/custody"
	"ravenstake/services/stakingd/ledger"
	"ravenstake/services/stakingd/recon"
	"ravenstake/services/stakingd/server"
	"ravenstake/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/stakingd/config.toml", "path to stakingd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("RVN_ENV"))
	logger := logging.Setup("stakingd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "stakingd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("stakingd: load config: %v", err)
	}

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("stakingd: resolve storage DSN: %v", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		log.Fatalf("stakingd: open storage: %v", err)
	}
	defer store.Close()

	eventLog, err := storage.OpenEventLog(cfg.EventLogPath)
	if err != nil {
		log.Fatalf("stakingd: open event log: %v", err)
	}
	defer eventLog.Close()

	cursorStore, err := cursor.Open(cfg.CursorPath)
	if err != nil {
		log.Fatalf("stakingd: open cursor store: %v", err)
	}
	defer cursorStore.Close()

	custodyClient, err := custody.NewClient(custody.Config{
		BaseURL: cfg.Custody.Endpoint,
		APIKey:  cfg.Custody.APIKey,
		Timeout: cfg.Custody.Timeout.Duration,
	})
	if err != nil {
		log.Fatalf("stakingd: custody client: %v", err)
	}
	ledgerClient, err := ledger.NewClient(ledger.Config{
		BaseURL: cfg.Ledger.Endpoint,
		APIKey:  cfg.Ledger.APIKey,
		Timeout: cfg.Ledger.Timeout.Duration,
	})
	if err != nil {
		log.Fatalf("stakingd: ledger client: %v", err)
	}

	engine, err := staking.NewEngine(rewardParams(cfg.Rewards),
		staking.WithCustody(custodyClient),
		staking.WithLedger(ledgerClient),
		staking.WithStore(store),
		staking.WithEmitter(eventLog),
		staking.WithVaultAccount(cfg.Custody.VaultAccount),
		staking.WithMaxInFlight(cfg.Rewards.MaxInFlight),
		staking.WithIndeterminateAfter(cfg.Sweep.IndeterminateAfter.Duration),
		staking.WithLogger(logger),
		staking.WithMetrics(observability.Staking()),
	)
	if err != nil {
		log.Fatalf("stakingd: build engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Hydrate(ctx); err != nil {
		log.Fatalf("stakingd: hydrate engine: %v", err)
	}

	reporter, err := recon.NewReporter(recon.Config{
		Journal:   store,
		Ledger:    ledgerClient,
		OutputDir: cfg.ReportDir,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("stakingd: reporter: %v", err)
	}

	auth, err := server.NewAuthenticator(cfg.AdminSecret)
	if err != nil {
		log.Fatalf("stakingd: configure admin auth: %v", err)
	}
	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		RateLimit: server.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
	}, engine, reporter, logger, auth)
	if err != nil {
		log.Fatalf("stakingd: build server: %v", err)
	}

	go sweepLoop(ctx, engine, cursorStore, cfg.Sweep, logger)

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("stakingd: server: %v", err)
	}
}

func rewardParams(cfg config.RewardsConfig) staking.RewardParams {
	params := staking.DefaultRewardParams()
	if raw := strings.TrimSpace(cfg.WeeklyBaseUnits); raw != "" {
		base, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			log.Fatalf("stakingd: invalid weekly_base_units %q", raw)
		}
		params.WeeklyBaseReward = base
	}
	if cfg.SecondsPerWeek > 0 {
		params.SecondsPerWeek = cfg.SecondsPerWeek
	}
	if len(cfg.Multipliers) > 0 {
		multipliers := make(map[staking.RarityTier]uint32, len(cfg.Multipliers))
		for raw, bps := range cfg.Multipliers {
			tier, err := staking.ParseRarityTier(raw)
			if err != nil {
				log.Fatalf("stakingd: invalid rarity %q in multipliers", raw)
			}
			multipliers[tier] = bps
		}
		params.Multipliers = multipliers
	}
	return params
}

// sweepLoop drives reconciliation passes on a timer, persisting the cursor
// between batches so restarts resume mid-scan.
func sweepLoop(ctx context.Context, engine *staking.Engine, store *cursor.Store, cfg config.SweepConfig, logger *slog.Logger) {
	pos, err := store.Load()
	if err != nil {
		logger.Error("load sweep cursor", "error", err)
	}
	ticker := time.NewTicker(cfg.Interval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		result, err := engine.Sweep(ctx, pos, cfg.BatchSize)
		if err != nil {
			logger.Error("sweep pass failed", "error", err)
			continue
		}
		if result.Resolved > 0 {
			logger.Info("sweep resolved settlements", "scanned", result.Scanned, "resolved", result.Resolved)
		}
		pos = result.NextCursor
		if err := store.Save(pos); err != nil {
			logger.Error("save sweep cursor", "error", err)
		}
	}
}
