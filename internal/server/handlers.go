package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/solana"
	"token-launchpad/internal/storage"
	"token-launchpad/internal/trade"
)

// tokenResponse is the JSON view of a token record.
type tokenResponse struct {
	ID          string     `json:"id"`
	Mint        string     `json:"mint"`
	Name        string     `json:"name"`
	Symbol      string     `json:"symbol"`
	Creator     string     `json:"creator,omitempty"`
	ImageURI    string     `json:"imageUri,omitempty"`
	MarketCap   *float64   `json:"marketCap"`
	Price       *float64   `json:"price,omitempty"`
	Volume24h   *float64   `json:"volume24h,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated"`
	IsTest      bool       `json:"isTest,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toTokenResponse(t *domain.Token) tokenResponse {
	return tokenResponse{
		ID:          t.ID,
		Mint:        t.Mint,
		Name:        t.Name,
		Symbol:      t.Symbol,
		Creator:     t.Creator,
		ImageURI:    t.ImageURI,
		MarketCap:   t.MarketCapUSD,
		Price:       t.PriceUSD,
		Volume24h:   t.Volume24hUSD,
		LastUpdated: t.LastMarketCapUpdate,
		IsTest:      t.IsTest,
		CreatedAt:   t.CreatedAt,
	}
}

// --- scheduler endpoints ---

type startRequest struct {
	IntervalMinutes int `json:"intervalMinutes"`
}

func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IntervalMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "intervalMinutes must be positive")
		return
	}

	s.scheduler.Start(time.Duration(req.IntervalMinutes) * time.Minute)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("scheduler started with %d minute interval", req.IntervalMinutes),
	})
}

func (s *Server) handleSchedulerStop(w http.ResponseWriter, _ *http.Request) {
	s.scheduler.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"message": "scheduler stopped"})
}

type statusResponse struct {
	IsRunning bool              `json:"isRunning"`
	LastJob   *domain.JobStatus `json:"lastJob"`
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		IsRunning: s.scheduler.IsRunning(),
		LastJob:   s.scheduler.LastJobStatus(),
	})
}

func (s *Server) handleTriggerUpdate(w http.ResponseWriter, r *http.Request) {
	job, err := s.scheduler.TriggerUpdate(r.Context())
	if err != nil {
		s.logger.Error("manual update cycle failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   err.Error(),
			"lastJob": job,
		})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- token endpoints ---

type createTokenRequest struct {
	Mint     string `json:"mint"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Creator  string `json:"creator"`
	ImageURI string `json:"imageUri"`
	IsTest   bool   `json:"isTest"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !solana.IsValidAddress(req.Mint) {
		writeError(w, http.StatusBadRequest, "invalid mint address")
		return
	}
	// Creator must be a wallet, which is always an on-curve key.
	if req.Creator != "" && !solana.IsOnCurve(req.Creator) {
		writeError(w, http.StatusBadRequest, "invalid creator wallet address")
		return
	}

	token := &domain.Token{
		ID:        uuid.NewString(),
		Mint:      req.Mint,
		Name:      req.Name,
		Symbol:    req.Symbol,
		Creator:   req.Creator,
		ImageURI:  req.ImageURI,
		IsTest:    req.IsTest,
		CreatedAt: time.Now(),
	}

	if err := s.store.Insert(r.Context(), token); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			writeError(w, http.StatusConflict, "token already exists")
			return
		}
		s.logger.Error("insert token failed", zap.String("mint", req.Mint), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, toTokenResponse(token))
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	mint := chi.URLParam(r, "mint")

	token, err := s.store.GetByMint(r.Context(), mint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "token not found")
			return
		}
		s.logger.Error("get token failed", zap.String("mint", mint), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch token")
		return
	}

	writeJSON(w, http.StatusOK, toTokenResponse(token))
}

type needingUpdateResponse struct {
	Tokens []tokenResponse `json:"tokens"`
	Count  int             `json:"count"`
}

func (s *Server) handleTokensNeedingUpdate(w http.ResponseWriter, r *http.Request) {
	olderThan := time.Now().Add(-s.scheduler.StalenessThreshold())
	tokens, err := s.store.ListNeedingUpdate(r.Context(), olderThan)
	if err != nil {
		s.logger.Error("list tokens needing update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tokens")
		return
	}

	resp := needingUpdateResponse{Tokens: make([]tokenResponse, 0, len(tokens))}
	for _, t := range tokens {
		resp.Tokens = append(resp.Tokens, toTokenResponse(t))
	}
	resp.Count = len(resp.Tokens)
	writeJSON(w, http.StatusOK, resp)
}

// --- market-cap endpoints ---

type marketCapResponse struct {
	Mint        string     `json:"mint"`
	MarketCap   *float64   `json:"marketCap"`
	LastUpdated *time.Time `json:"lastUpdated"`
}

func (s *Server) handleGetMarketCap(w http.ResponseWriter, r *http.Request) {
	mint := chi.URLParam(r, "mint")

	token, err := s.store.GetByMint(r.Context(), mint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "token not found")
			return
		}
		s.logger.Error("get market cap failed", zap.String("mint", mint), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch token")
		return
	}

	writeJSON(w, http.StatusOK, marketCapResponse{
		Mint:        token.Mint,
		MarketCap:   token.MarketCapUSD,
		LastUpdated: token.LastMarketCapUpdate,
	})
}

type overrideRequest struct {
	MarketCap *float64 `json:"marketCap"`
	Price     *float64 `json:"price"`
	Volume24h *float64 `json:"volume24h"`
}

func (s *Server) handleOverrideMarketCap(w http.ResponseWriter, r *http.Request) {
	mint := chi.URLParam(r, "mint")

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := storage.MarketStatsUpdate{
		MarketCapUSD: req.MarketCap,
		PriceUSD:     req.Price,
		Volume24hUSD: req.Volume24h,
	}
	if upd.IsEmpty() {
		writeError(w, http.StatusBadRequest, "at least one of marketCap, price, volume24h is required")
		return
	}

	if err := s.store.UpdateMarketStats(r.Context(), mint, upd, time.Now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "token not found")
			return
		}
		s.logger.Error("market stats override failed", zap.String("mint", mint), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update token")
		return
	}

	s.logger.Info("market stats overridden", zap.String("mint", mint))
	writeJSON(w, http.StatusOK, map[string]string{"message": "market data updated"})
}

// --- trade endpoint ---

type tradeRequest struct {
	Wallet      string  `json:"wallet"`
	Mint        string  `json:"mint"`
	Side        string  `json:"side"`
	AmountSol   float64 `json:"amountSol"`
	SlippagePct float64 `json:"slippagePct"`
	PriorityFee float64 `json:"priorityFee"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side := domain.TradeDirection(req.Side)
	if side != domain.TradeBuy && side != domain.TradeSell {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	if !solana.IsOnCurve(req.Wallet) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}
	if !solana.IsValidAddress(req.Mint) {
		writeError(w, http.StatusBadRequest, "invalid mint address")
		return
	}
	if req.AmountSol <= 0 {
		writeError(w, http.StatusBadRequest, "amountSol must be positive")
		return
	}

	resp, err := s.trades.Execute(r.Context(), trade.Request{
		Wallet:      req.Wallet,
		Mint:        req.Mint,
		Side:        side,
		AmountSol:   req.AmountSol,
		SlippagePct: req.SlippagePct,
		PriorityFee: req.PriorityFee,
	})
	if err != nil {
		s.logger.Error("trade execution failed", zap.String("mint", req.Mint), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	// Confirmation is watched in the background, decoupled from this
	// request's lifecycle.
	if s.confirmer != nil {
		s.confirmer.Watch(resp.Signature)
	}

	writeJSON(w, http.StatusOK, map[string]string{"signature": resp.Signature})
}
