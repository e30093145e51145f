// Package trade provides the HTTP handlers for placing orders, closing and
// reversing positions, and querying portfolios and candles.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tradelab/sim-engine/internal/ledger"
	"github.com/tradelab/sim-engine/internal/model"
	"github.com/tradelab/sim-engine/internal/session"
)

// Service handles simulation API requests. Per-portfolio serialization
// lives in the session layer; handlers stay stateless.
type Service struct {
	sessions *session.Manager
}

// NewService creates a new trade service.
func NewService(sessions *session.Manager) *Service {
	return &Service{sessions: sessions}
}

// --- Request/Response types ---

// OrderRequest is the JSON body for POST /{userID}/trade.
type OrderRequest struct {
	InstrumentKey string          `json:"instrument_key"`
	Side          string          `json:"side"` // "BUY" or "SELL"
	Quantity      decimal.Decimal `json:"quantity"`
}

// CloseRequest is the JSON body for POST /{userID}/positions/close.
// A zero or missing quantity closes the full position.
type CloseRequest struct {
	InstrumentKey string          `json:"instrument_key"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// ReverseRequest is the JSON body for POST /{userID}/positions/reverse.
type ReverseRequest struct {
	InstrumentKey string `json:"instrument_key"`
}

// TimeframeRequest is the JSON body for PUT /{userID}/timeframe.
type TimeframeRequest struct {
	Timeframe string `json:"timeframe"` // "1m", "5m", "15m", "30m", "45m"
}

// CandlesResponse is the JSON body returned from GET /{userID}/candles/{key}.
type CandlesResponse struct {
	InstrumentKey string         `json:"instrument_key"`
	Timeframe     string         `json:"timeframe"`
	Candles       []model.Candle `json:"candles"`
}

// --- HTTP Handlers ---

// PlaceOrder handles POST /api/v1/{userID}/trade.
// Executes the intent at the current synthetic mark and returns the
// updated portfolio.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}

	sess, err := s.userSession(w, r)
	if err != nil {
		return
	}

	portfolio, err := sess.PlaceOrder(req.InstrumentKey, req.Side, req.Quantity)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	slog.Info("order executed",
		"user", chi.URLParam(r, "userID"),
		"instrument", req.InstrumentKey,
		"side", req.Side,
		"qty", req.Quantity.String(),
		"cash", portfolio.Cash.String(),
	)

	writeJSON(w, http.StatusOK, portfolio)
}

// ClosePosition handles POST /api/v1/{userID}/positions/close.
func (s *Service) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var req CloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := s.userSession(w, r)
	if err != nil {
		return
	}

	portfolio, err := sess.ClosePosition(req.InstrumentKey, req.Quantity)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, portfolio)
}

// ReversePosition handles POST /api/v1/{userID}/positions/reverse.
func (s *Service) ReversePosition(w http.ResponseWriter, r *http.Request) {
	var req ReverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := s.userSession(w, r)
	if err != nil {
		return
	}

	portfolio, err := sess.ReversePosition(req.InstrumentKey)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, portfolio)
}

// GetPortfolio handles GET /api/v1/{userID}/portfolio.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	sess, err := s.userSession(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, sess.Portfolio())
}

// ListInstruments handles GET /api/v1/{userID}/instruments.
func (s *Service) ListInstruments(w http.ResponseWriter, r *http.Request) {
	sess, err := s.userSession(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, sess.Instruments())
}

// GetCandles handles GET /api/v1/{userID}/candles/{instrumentKey}.
// Returns the active-timeframe bars, ending with the in-progress bar.
func (s *Service) GetCandles(w http.ResponseWriter, r *http.Request) {
	sess, err := s.userSession(w, r)
	if err != nil {
		return
	}

	key := chi.URLParam(r, "instrumentKey")
	candles, err := sess.Candles(key)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	if candles == nil {
		candles = []model.Candle{}
	}

	writeJSON(w, http.StatusOK, CandlesResponse{
		InstrumentKey: key,
		Timeframe:     sess.Timeframe().String(),
		Candles:       candles,
	})
}

// SetTimeframe handles PUT /api/v1/{userID}/timeframe.
// Switching re-aggregates existing history; the price feed keeps running.
func (s *Service) SetTimeframe(w http.ResponseWriter, r *http.Request) {
	var req TimeframeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tf, err := model.ParseTimeframe(req.Timeframe)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := s.userSession(w, r)
	if err != nil {
		return
	}

	sess.SetTimeframe(tf)
	writeJSON(w, http.StatusOK, map[string]string{"timeframe": tf.String()})
}

// userSession resolves the request's session, writing the error response
// itself on failure.
func (s *Service) userSession(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, "userID is required", http.StatusBadRequest)
		return nil, errors.New("missing userID")
	}

	sess, err := s.sessions.Session(r.Context(), userID)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return nil, err
	}
	return sess, nil
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrUnknownInstrument), errors.Is(err, session.ErrNoPosition):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientCash):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidPrice),
		errors.Is(err, ledger.ErrInvalidSide):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
