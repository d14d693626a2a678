package store

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/papertrade/session-engine/internal/ledger"
	"github.com/papertrade/session-engine/internal/model"
)

// Order is a participant's request to trade at the current tick price.
type Order struct {
	SessionID string
	UserID    string
	Symbol    string
	Quantity  int64
	Direction model.Direction
}

// Execution is the result of a filled order.
type Execution struct {
	Trade          model.Trade      `json:"trade"`
	RoundTrip      *model.RoundTrip `json:"roundtrip,omitempty"`
	AvailableCoins decimal.Decimal  `json:"available_coins"`
}

// PlaceOrder validates o and executes it at the session's current tick price.
// Checks run in order: session exists, session STARTED, quantity positive,
// direction valid, instrument exists, participant joined, then holdings
// (SELL) or funds (BUY). Validation and execution share one critical section,
// so the price and balances checked are the ones traded against.
func (s *Store) PlaceOrder(o Order) (Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(o.SessionID)
	if err != nil {
		return Execution{}, err
	}
	if sess.state != model.StateStarted {
		return Execution{}, fmt.Errorf("group %s: %w", o.SessionID, model.ErrSessionNotActive)
	}
	if o.Quantity <= 0 {
		return Execution{}, model.ErrInvalidQuantity
	}
	if !o.Direction.Valid() {
		return Execution{}, model.ErrInvalidDirection
	}
	inst, err := sess.instrument(o.Symbol)
	if err != nil {
		return Execution{}, err
	}
	acct, err := sess.account(o.UserID)
	if err != nil {
		return Execution{}, err
	}

	price := inst.Prices[sess.active]
	switch o.Direction {
	case model.Sell:
		if err := checkHoldings(acct, inst.Symbol, o.Quantity); err != nil {
			return Execution{}, err
		}
	case model.Buy:
		if acct.AvailableCoins.LessThan(ledger.Notional(price, o.Quantity)) {
			return Execution{}, model.ErrInsufficientFunds
		}
	}
	return s.execute(acct, o.UserID, inst.Symbol, o.Quantity, price, o.Direction), nil
}

// ExecuteTrade applies a trade at an explicit price without the lifecycle and
// funds checks of PlaceOrder. It still refuses a SELL larger than the
// holding, which the ledger itself would silently ignore.
func (s *Store) ExecuteTrade(sessionID, userID, sym string, qty int64, price decimal.Decimal, dir model.Direction) (Execution, error) {
	if qty <= 0 {
		return Execution{}, model.ErrInvalidQuantity
	}
	if !dir.Valid() {
		return Execution{}, model.ErrInvalidDirection
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return Execution{}, err
	}
	inst, err := sess.instrument(sym)
	if err != nil {
		return Execution{}, err
	}
	acct, err := sess.account(userID)
	if err != nil {
		return Execution{}, err
	}
	if dir == model.Sell {
		if err := checkHoldings(acct, inst.Symbol, qty); err != nil {
			return Execution{}, err
		}
	}
	return s.execute(acct, userID, inst.Symbol, qty, price, dir), nil
}

func (s *Store) execute(acct *model.Account, userID, sym string, qty int64, price decimal.Decimal, dir model.Direction) Execution {
	t := model.Trade{
		ID:        model.NewTradeID(),
		UserID:    userID,
		Symbol:    sym,
		Quantity:  qty,
		Price:     price,
		Direction: dir,
		Timestamp: s.now(),
	}
	rt := ledger.Apply(acct, t)
	return Execution{Trade: t, RoundTrip: rt, AvailableCoins: acct.AvailableCoins}
}

func checkHoldings(acct *model.Account, sym string, qty int64) error {
	i := acct.Position(sym)
	if i < 0 || acct.OpenPositions[i].Quantity < qty {
		return model.ErrInsufficientPosition
	}
	return nil
}
