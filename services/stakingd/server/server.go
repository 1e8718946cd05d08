// Package server hosts the stakingd HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ravenstake/native/staking"
	"ravenstake/services/stakingd/recon"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	RateLimit     RateLimit
}

// Server exposes the staking operations over HTTP.
type Server struct {
	cfg       Config
	engine    *staking.Engine
	reporter  *recon.Reporter
	logger    *slog.Logger
	adminAuth *Authenticator
}

// New constructs a new HTTP server.
func New(cfg Config, engine *staking.Engine, reporter *recon.Reporter, logger *slog.Logger, auth *Authenticator) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if auth == nil {
		return nil, fmt.Errorf("admin authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, engine: engine, reporter: reporter, logger: logger, adminAuth: auth}, nil
}

// Handler builds the router. Split out from Run so tests can drive it with
// httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		if s.cfg.RateLimit.RequestsPerSecond > 0 {
			v1.Use(NewRateLimiter(s.cfg.RateLimit).Middleware)
		}
		v1.Method(http.MethodPost, "/stake", otelhttp.NewHandler(http.HandlerFunc(s.handleStake), "stakingd.stake"))
		v1.Method(http.MethodPost, "/claim", otelhttp.NewHandler(http.HandlerFunc(s.handleClaim), "stakingd.claim"))
		v1.Method(http.MethodPost, "/unstake", otelhttp.NewHandler(http.HandlerFunc(s.handleUnstake), "stakingd.unstake"))
		v1.Method(http.MethodGet, "/staked/{owner}", otelhttp.NewHandler(http.HandlerFunc(s.handleStaked), "stakingd.staked"))
		v1.Method(http.MethodGet, "/rewards/{owner}", otelhttp.NewHandler(http.HandlerFunc(s.handleRewards), "stakingd.rewards"))
		v1.Method(http.MethodGet, "/leaderboard", otelhttp.NewHandler(http.HandlerFunc(s.handleLeaderboard), "stakingd.leaderboard"))
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(s.adminAuth.Middleware)
		admin.Post("/pause", s.handlePause)
		admin.Post("/resume", s.handleResume)
		admin.Post("/reconcile", s.handleReconcile)
		admin.Post("/report", s.handleReport)
		admin.Put("/params", s.handleParams)
	})

	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

type assetRequest struct {
	Owner      string `json:"owner"`
	Collection string `json:"collection"`
	AssetID    uint64 `json:"assetId"`
	Rarity     string `json:"rarity"`
}

func decodeAssetRequest(w http.ResponseWriter, r *http.Request) (assetRequest, bool) {
	var req assetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return req, false
	}
	req.Owner = strings.TrimSpace(req.Owner)
	req.Collection = strings.TrimSpace(req.Collection)
	if req.Owner == "" || req.Collection == "" {
		http.Error(w, "owner and collection required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAssetRequest(w, r)
	if !ok {
		return
	}
	rarity, err := staking.ParseRarityTier(req.Rarity)
	if err != nil {
		http.Error(w, "unknown rarity", http.StatusBadRequest)
		return
	}
	record, err := s.engine.Stake(r.Context(), req.Owner, req.Collection, req.AssetID, rarity)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAssetRequest(w, r)
	if !ok {
		return
	}
	amount, err := s.engine.Claim(r.Context(), req.Owner, req.Collection, req.AssetID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"amount": amount.String()})
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAssetRequest(w, r)
	if !ok {
		return
	}
	settled, err := s.engine.Unstake(r.Context(), req.Owner, req.Collection, req.AssetID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"settled": settled.String()})
}

func (s *Server) handleStaked(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	records := s.engine.GetStaked(owner)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"owner": owner, "staked": records})
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	pending := s.engine.PendingRewards(owner)
	response := map[string]any{"owner": owner, "pending": pending.String()}
	if agg, ok := s.engine.OwnerAggregateFor(owner); ok {
		response["totalEarned"] = agg.TotalRewardsEarned.String()
		response["totalStaked"] = agg.TotalStaked
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	entries := s.engine.Leaderboard(limit)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"leaderboard": entries})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.engine.Pause()
	s.logger.Info("engine paused")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.engine.Resume()
	s.logger.Info("engine resumed")
	w.WriteHeader(http.StatusNoContent)
}

// handleReconcile runs one full sweep pass over the record set.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var (
		cursor   string
		scanned  int
		resolved int
	)
	for {
		result, err := s.engine.Sweep(r.Context(), cursor, 100)
		if err != nil {
			s.logger.Error("sweep failed", "error", err)
			http.Error(w, "sweep failed", http.StatusInternalServerError)
			return
		}
		scanned += result.Scanned
		resolved += result.Resolved
		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"scanned": scanned, "resolved": resolved})
}

type paramsRequest struct {
	WeeklyBaseUnits string            `json:"weeklyBaseUnits"`
	SecondsPerWeek  uint64            `json:"secondsPerWeek"`
	Multipliers     map[string]uint32 `json:"multipliers"`
}

// handleParams replaces the reward schedule. Records already staked keep the
// multiplier fixed at stake time; only the base emission changes for them.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	params := s.engine.Params()
	if raw := strings.TrimSpace(req.WeeklyBaseUnits); raw != "" {
		base, ok := new(big.Int).SetString(raw, 10)
		if !ok || base.Sign() <= 0 {
			http.Error(w, "invalid weeklyBaseUnits", http.StatusBadRequest)
			return
		}
		params.WeeklyBaseReward = base
	}
	if req.SecondsPerWeek > 0 {
		params.SecondsPerWeek = req.SecondsPerWeek
	}
	if len(req.Multipliers) > 0 {
		multipliers := make(map[staking.RarityTier]uint32, len(req.Multipliers))
		for raw, bps := range req.Multipliers {
			tier, err := staking.ParseRarityTier(raw)
			if err != nil {
				http.Error(w, "unknown rarity in multipliers", http.StatusBadRequest)
				return
			}
			multipliers[tier] = bps
		}
		params.Multipliers = multipliers
	}
	if err := s.engine.SetParams(params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Info("reward parameters updated")
	w.WriteHeader(http.StatusNoContent)
}

type reportRequest struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.reporter == nil {
		http.Error(w, "reporting not configured", http.StatusServiceUnavailable)
		return
	}
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.End <= req.Start {
		http.Error(w, "end must be after start", http.StatusBadRequest)
		return
	}
	result, err := s.reporter.Run(r.Context(), req.Start, req.End)
	if err != nil {
		s.logger.Error("report failed", "error", err)
		http.Error(w, "report failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"rows":      result.Rows,
		"anomalies": len(result.Anomalies),
		"csv":       result.CSVPath,
		"parquet":   result.ParquetPath,
	})
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, staking.ErrInvalidOwner), errors.Is(err, staking.ErrUnknownRarity):
		status = http.StatusBadRequest
	case errors.Is(err, staking.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, staking.ErrNotStaked):
		status = http.StatusNotFound
	case errors.Is(err, staking.ErrAlreadyStaked), errors.Is(err, staking.ErrAlreadyPending),
		errors.Is(err, staking.ErrIndeterminate), errors.Is(err, staking.ErrCustodyPending):
		status = http.StatusConflict
	case errors.Is(err, staking.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, staking.ErrPaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, staking.ErrTransferFailed), errors.Is(err, staking.ErrCustodyTransferFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("operation failed", "path", r.URL.Path, "error", err)
	}
	http.Error(w, err.Error(), status)
}
