// Package trade provides the HTTP handlers for registering users, managing
// trading groups, placing orders and querying positions and leaderboards.
//
// All coin values are shopspring/decimal on the wire as well as in memory.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/papertrade/session-engine/internal/metrics"
	"github.com/papertrade/session-engine/internal/model"
	"github.com/papertrade/session-engine/internal/ohlc"
	"github.com/papertrade/session-engine/internal/store"
)

// Clock starts the market clock of a session.
type Clock interface {
	Begin(sessionID string) error
}

// Service maps HTTP requests onto the session store and the market clock.
// The store serializes every mutation, so handlers hold no locks.
type Service struct {
	store *store.Store
	clock Clock
	log   *slog.Logger
}

// NewService creates a new trade service.
func NewService(st *store.Store, clock Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, clock: clock, log: logger}
}

// Routes mounts every handler on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/register", s.Register)
	r.Post("/login", s.Login)
	r.Get("/users/{userID}", s.GetUser)
	r.Get("/users/by-phone/{phone}", s.GetUserByPhone)
	r.Get("/users/{userID}/groups", s.UserGroups)
	r.Get("/users/{userID}/joinable-groups", s.JoinableGroups)

	r.Post("/groups", s.CreateGroup)
	r.Post("/groups/join", s.JoinGroup)
	r.Get("/groups", s.ListGroups)
	r.Get("/groups/{groupID}", s.GetGroup)
	r.Post("/groups/{groupID}/begin", s.BeginGroup)
	r.Get("/groups/{groupID}/leaderboard", s.Leaderboard)
	r.Get("/groups/{groupID}/stocks", s.Stocks)
	r.Get("/groups/{groupID}/margin/{userID}", s.Margin)
	r.Get("/groups/{groupID}/positions/{userID}", s.Positions)
	r.Get("/groups/{groupID}/pnl/{userID}", s.PnL)
	r.Get("/groups/{groupID}/candles/{symbol}/{freq}", s.Candles)

	r.Post("/orders", s.PlaceOrder)
}

// --- Request/Response types ---

// RegisterRequest is the JSON body for POST /register.
type RegisterRequest struct {
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest is the JSON body for POST /login.
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// UserIDResponse is returned by register and login.
type UserIDResponse struct {
	UserID string `json:"user_id"`
}

// CreateGroupRequest is the JSON body for POST /groups.
type CreateGroupRequest struct {
	Name         string          `json:"name"`
	CreatorID    string          `json:"creator_id"`
	StockList    []string        `json:"stock_list"`
	PerUserCoins decimal.Decimal `json:"per_user_coins"`
	Duration     int             `json:"duration"`
}

// JoinGroupRequest is the JSON body for POST /groups/join.
type JoinGroupRequest struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`
}

// JoinGroupResponse reports whether the user was newly added.
type JoinGroupResponse struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Joined  bool   `json:"joined"`
}

// BeginResponse is returned once a group's clock is running.
type BeginResponse struct {
	GroupID  string      `json:"group_id"`
	State    model.State `json:"state"`
	Duration int         `json:"duration"`
}

// OrderRequest is the JSON body for POST /orders.
type OrderRequest struct {
	UserID    string          `json:"user_id"`
	GroupID   string          `json:"group_id"`
	Stock     string          `json:"stock"`
	Quantity  int64           `json:"quantity"`
	Direction model.Direction `json:"direction"`
}

// StockQuote is one instrument with its price at the current tick.
type StockQuote struct {
	Stock string          `json:"stock"`
	Price decimal.Decimal `json:"price"`
}

// MarginResponse is the body of GET /groups/{groupID}/margin/{userID}.
type MarginResponse struct {
	UserID         string          `json:"user_id"`
	AvailableCoins decimal.Decimal `json:"available_coins"`
}

// --- Users ---

// Register handles POST /api/v1/register
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Phone == "" || req.Name == "" || req.Password == "" {
		writeError(w, model.ErrMissingField)
		return
	}

	id := model.NewUserID()
	if err := s.store.RegisterUser(id, req.Phone, req.Name, req.Password); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("user registered", "user", id, "name", req.Name)
	writeJSON(w, http.StatusCreated, UserIDResponse{UserID: id})
}

// Login handles POST /api/v1/login
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Phone == "" || req.Password == "" {
		writeError(w, model.ErrMissingField)
		return
	}

	id, err := s.store.Authenticate(req.Phone, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserIDResponse{UserID: id})
}

// GetUser handles GET /api/v1/users/{userID}
func (s *Service) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.User(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GetUserByPhone handles GET /api/v1/users/by-phone/{phone}
func (s *Service) GetUserByPhone(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.UserByPhone(chi.URLParam(r, "phone"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UserGroups handles GET /api/v1/users/{userID}/groups
func (s *Service) UserGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.SessionsForUser(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// JoinableGroups handles GET /api/v1/users/{userID}/joinable-groups
func (s *Service) JoinableGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.JoinableSessions(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// --- Groups ---

// CreateGroup handles POST /api/v1/groups
func (s *Service) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.CreatorID == "" || len(req.StockList) == 0 {
		writeError(w, model.ErrMissingField)
		return
	}

	sess, err := s.store.CreateSession(store.NewSession{
		ID:           model.NewSessionID(),
		Name:         req.Name,
		CreatorID:    req.CreatorID,
		Symbols:      req.StockList,
		PerUserCoins: req.PerUserCoins,
		Duration:     req.Duration,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.log.Info("group created",
		"group", sess.ID,
		"creator", sess.CreatorID,
		"stocks", strings.Join(sess.Symbols, ","),
		"per_user_coins", sess.PerUserCoins.String(),
		"duration", sess.Duration,
	)
	writeJSON(w, http.StatusCreated, sess)
}

// JoinGroup handles POST /api/v1/groups/join
func (s *Service) JoinGroup(w http.ResponseWriter, r *http.Request) {
	var req JoinGroupRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.GroupID == "" {
		writeError(w, model.ErrMissingField)
		return
	}

	joined, err := s.store.JoinSession(req.GroupID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if joined {
		s.log.Info("user joined group", "group", req.GroupID, "user", req.UserID)
	}
	writeJSON(w, http.StatusOK, JoinGroupResponse{GroupID: req.GroupID, UserID: req.UserID, Joined: joined})
}

// ListGroups handles GET /api/v1/groups
// Supports an optional ?state= filter.
func (s *Service) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.store.Sessions()

	if state := model.State(strings.ToUpper(r.URL.Query().Get("state"))); state != "" {
		filtered := []model.Session{}
		for _, g := range groups {
			if g.State == state {
				filtered = append(filtered, g)
			}
		}
		groups = filtered
	}
	writeJSON(w, http.StatusOK, groups)
}

// GetGroup handles GET /api/v1/groups/{groupID}
func (s *Service) GetGroup(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Snapshot(chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// BeginGroup handles POST /api/v1/groups/{groupID}/begin
// Starts the group and its market clock.
func (s *Service) BeginGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	if err := s.clock.Begin(groupID); err != nil {
		writeError(w, err)
		return
	}

	duration, err := s.store.Duration(groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := s.store.State(groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BeginResponse{GroupID: groupID, State: state, Duration: duration})
}

// Leaderboard handles GET /api/v1/groups/{groupID}/leaderboard
func (s *Service) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.store.Leaderboard(chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// Stocks handles GET /api/v1/groups/{groupID}/stocks
func (s *Service) Stocks(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	symbols, err := s.store.Symbols(groupID)
	if err != nil {
		writeError(w, err)
		return
	}

	quotes := make([]StockQuote, 0, len(symbols))
	for _, sym := range symbols {
		price, err := s.store.CurrentPrice(groupID, sym)
		if err != nil {
			writeError(w, err)
			return
		}
		quotes = append(quotes, StockQuote{Stock: sym, Price: price})
	}
	writeJSON(w, http.StatusOK, quotes)
}

// --- Accounts ---

// Margin handles GET /api/v1/groups/{groupID}/margin/{userID}
func (s *Service) Margin(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	coins, err := s.store.Margin(chi.URLParam(r, "groupID"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MarginResponse{UserID: userID, AvailableCoins: coins})
}

// Positions handles GET /api/v1/groups/{groupID}/positions/{userID}
func (s *Service) Positions(w http.ResponseWriter, r *http.Request) {
	pos, err := s.store.Positions(chi.URLParam(r, "groupID"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// PnL handles GET /api/v1/groups/{groupID}/pnl/{userID}
func (s *Service) PnL(w http.ResponseWriter, r *http.Request) {
	pnl, err := s.store.PnL(chi.URLParam(r, "groupID"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pnl)
}

// Candles handles GET /api/v1/groups/{groupID}/candles/{symbol}/{freq}
// freq is a Go duration ("5s") or a resample alias ("5S", "1min").
func (s *Service) Candles(w http.ResponseWriter, r *http.Request) {
	width, err := ohlc.ParseWidth(chi.URLParam(r, "freq"))
	if err != nil {
		writeError(w, err)
		return
	}
	candles, err := s.store.Candles(chi.URLParam(r, "groupID"), chi.URLParam(r, "symbol"), width)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candles)
}

// --- Orders ---

// PlaceOrder handles POST /api/v1/orders
// Executes at the group's current tick price.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req OrderRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.GroupID == "" || req.Stock == "" {
		metrics.OrderRejections.WithLabelValues(reason(model.ErrMissingField)).Inc()
		writeError(w, model.ErrMissingField)
		return
	}
	req.Direction = model.Direction(strings.ToUpper(string(req.Direction)))

	exec, err := s.store.PlaceOrder(store.Order{
		SessionID: req.GroupID,
		UserID:    req.UserID,
		Symbol:    req.Stock,
		Quantity:  req.Quantity,
		Direction: req.Direction,
	})
	if err != nil {
		metrics.OrderRejections.WithLabelValues(reason(err)).Inc()
		s.log.Debug("order rejected", "group", req.GroupID, "user", req.UserID, "stock", req.Stock, "err", err)
		writeError(w, err)
		return
	}

	dir := string(exec.Trade.Direction)
	metrics.TradesTotal.WithLabelValues(dir).Inc()
	metrics.TradeVolume.WithLabelValues(dir).Add(float64(exec.Trade.Quantity))
	metrics.TradeLatency.WithLabelValues(dir).Observe(time.Since(start).Seconds())

	s.log.Info("trade executed",
		"trade_id", exec.Trade.ID,
		"group", req.GroupID,
		"user", req.UserID,
		"stock", exec.Trade.Symbol,
		"direction", dir,
		"qty", exec.Trade.Quantity,
		"price", exec.Trade.Price.String(),
		"available_coins", exec.AvailableCoins.String(),
	)
	writeJSON(w, http.StatusOK, exec)
}

// --- helpers ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with the status of err's kind.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), map[string]string{"error": err.Error()})
}

// StatusFor maps an engine error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInsufficient):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrStateConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrStateConflict):
		return "state"
	case errors.Is(err, model.ErrInsufficient):
		return "insufficient"
	default:
		return "internal"
	}
}
