package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/session-engine/internal/model"
	"github.com/papertrade/session-engine/internal/ohlc"
)

// State returns the lifecycle state of a session.
func (s *Store) State(sessionID string) (model.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return "", err
	}
	return sess.state, nil
}

// Duration returns the total number of ticks of a session.
func (s *Store) Duration(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return 0, err
	}
	return sess.duration, nil
}

// TickPointer returns the number of ticks already consumed.
func (s *Store) TickPointer(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return 0, err
	}
	return sess.active, nil
}

// Symbols returns the instrument symbols of a session in creation order.
func (s *Store) Symbols(sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return append([]string{}, sess.symbols...), nil
}

// CurrentPrice returns the price of sym at the session's tick pointer.
func (s *Store) CurrentPrice(sessionID, sym string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return decimal.Zero, err
	}
	inst, err := sess.instrument(sym)
	if err != nil {
		return decimal.Zero, err
	}
	return inst.Prices[sess.active], nil
}

// Snapshot returns a deep copy of a session.
func (s *Store) Snapshot(sessionID string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return model.Session{}, err
	}
	return sess.snapshot(), nil
}

// Sessions returns every session in creation order.
func (s *Store) Sessions() []model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterSessions(func(*session) bool { return true })
}

// SessionsForUser returns the sessions userID has joined.
func (s *Store) SessionsForUser(userID string) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("user %s: %w", userID, model.ErrUnknownUser)
	}
	return s.filterSessions(func(sess *session) bool {
		_, ok := sess.accounts[userID]
		return ok
	}), nil
}

// JoinableSessions returns the unfinished sessions userID has not joined.
func (s *Store) JoinableSessions(userID string) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("user %s: %w", userID, model.ErrUnknownUser)
	}
	return s.filterSessions(func(sess *session) bool {
		_, ok := sess.accounts[userID]
		return !ok && sess.state != model.StateFinished
	}), nil
}

func (s *Store) filterSessions(keep func(*session) bool) []model.Session {
	out := []model.Session{}
	for _, id := range s.sessionOrder {
		if sess := s.sessions[id]; keep(sess) {
			out = append(out, sess.snapshot())
		}
	}
	return out
}

// IsMember reports whether userID has joined the session.
func (s *Store) IsMember(sessionID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return false, err
	}
	_, ok := sess.accounts[userID]
	return ok, nil
}

// Account returns a copy of one participant's account.
func (s *Store) Account(sessionID, userID string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, err := s.account(sessionID, userID)
	if err != nil {
		return model.Account{}, err
	}
	return acct.Clone(), nil
}

// Positions returns the open positions and round trips of one participant.
func (s *Store) Positions(sessionID, userID string) (model.Positions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, err := s.account(sessionID, userID)
	if err != nil {
		return model.Positions{}, err
	}
	c := acct.Clone()
	return model.Positions{Open: c.OpenPositions, Closed: c.RoundTrips}, nil
}

// Margin returns the available coins of one participant.
func (s *Store) Margin(sessionID, userID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, err := s.account(sessionID, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.AvailableCoins, nil
}

// PnL breaks one participant's P&L down by instrument. Every instrument of
// the session is present, held or not.
func (s *Store) PnL(sessionID, userID string) (map[string]model.SymbolPnL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	acct, err := sess.account(userID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.SymbolPnL, len(sess.symbols))
	for _, sym := range sess.symbols {
		out[sym] = model.SymbolPnL{UnrealizedPnL: decimal.Zero, RealizedPnL: decimal.Zero}
	}
	for _, op := range acct.OpenPositions {
		op := op
		e := out[op.Symbol]
		e.Holdings = op.Quantity
		e.UnrealizedPnL = op.PnL
		e.Position = &op
		out[op.Symbol] = e
	}
	for _, rt := range acct.RoundTrips {
		e := out[rt.Symbol]
		e.RealizedPnL = e.RealizedPnL.Add(rt.PnL)
		out[rt.Symbol] = e
	}
	return out, nil
}

// Leaderboard ranks every participant by MTM, highest first. Ties keep join
// order.
func (s *Store) Leaderboard(sessionID string) ([]model.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	board := make([]model.LeaderboardEntry, 0, len(sess.members))
	for _, id := range sess.members {
		name := ""
		if u, ok := s.users[id]; ok {
			name = u.Name
		}
		board = append(board, model.LeaderboardEntry{
			UserID:   id,
			UserName: name,
			MTM:      sess.accounts[id].MTM,
		})
	}
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].MTM.GreaterThan(board[j].MTM)
	})
	return board, nil
}

// Candles resamples the realized prices of sym (ticks 0 through the tick
// pointer) into OHLC candles of the given width. The session must have
// started.
func (s *Store) Candles(sessionID, sym string, width time.Duration) ([]model.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.state == model.StateCreated {
		return nil, fmt.Errorf("group %s: %w", sessionID, model.ErrSessionNotStarted)
	}
	inst, err := sess.instrument(sym)
	if err != nil {
		return nil, err
	}
	return ohlc.Aggregate(sess.startedAt, s.tickUnit, inst.Prices[:sess.active+1], width)
}

func (s *Store) account(sessionID, userID string) (*model.Account, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.account(userID)
}
