// Package model defines the core domain types shared across the session engine.
// All coin amounts and prices use shopspring/decimal. Only the synthetic price
// generator works in float64; its output is converted at the store boundary.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// State is the lifecycle state of a trading session.
// Transitions are monotonic: CREATED -> STARTED -> FINISHED.
type State string

const (
	StateCreated  State = "CREATED"
	StateStarted  State = "STARTED"
	StateFinished State = "FINISHED"
)

// Direction is the side of a trade.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Valid reports whether d is BUY or SELL.
func (d Direction) Valid() bool {
	return d == Buy || d == Sell
}

// User is a registered participant. PasswordHash is a bcrypt hash and is
// never serialized.
type User struct {
	ID           string `json:"user_id"`
	Phone        string `json:"phone"`
	Name         string `json:"name"`
	PasswordHash []byte `json:"-"`
}

// Instrument is one symbol of a session with its full precomputed price path.
// len(Prices) == session duration + 1; Prices[0] is the seed price.
type Instrument struct {
	Symbol string
	Prices []decimal.Decimal
}

// Trade is an immutable record of one execution.
type Trade struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Symbol    string          `json:"stock"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Direction Direction       `json:"direction"`
	Timestamp time.Time       `json:"timestamp"`
}

// OpenPosition is an unclosed lot. At most one exists per symbol per account.
type OpenPosition struct {
	UserID       string          `json:"user_id"`
	Symbol       string          `json:"stock"`
	Quantity     int64           `json:"quantity"`
	EntryPrice   decimal.Decimal `json:"entry_price"` // volume-weighted
	EntryTime    time.Time       `json:"entry_time"`
	Direction    Direction       `json:"direction"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	PnL          decimal.Decimal `json:"pnl"` // unrealized
}

// RoundTrip records the full or partial close of a position.
type RoundTrip struct {
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"stock"`
	Quantity   int64           `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	EntryTime  time.Time       `json:"entry_time"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	ExitTime   time.Time       `json:"exit_time"`
	Direction  Direction       `json:"direction"`
	PnL        decimal.Decimal `json:"pnl"` // realized
}

// Account is one participant's holdings inside one session.
type Account struct {
	UserID         string          `json:"user_id"`
	AvailableCoins decimal.Decimal `json:"available_coins"`
	MTM            decimal.Decimal `json:"mtm"`
	Trades         []Trade         `json:"trades"`
	OpenPositions  []OpenPosition  `json:"open_positions"`
	RoundTrips     []RoundTrip     `json:"roundtrips"`
}

// NewAccount returns an empty account funded with coins.
func NewAccount(userID string, coins decimal.Decimal) *Account {
	return &Account{
		UserID:         userID,
		AvailableCoins: coins,
		MTM:            decimal.Zero,
		Trades:         []Trade{},
		OpenPositions:  []OpenPosition{},
		RoundTrips:     []RoundTrip{},
	}
}

// Position returns the index of the open position for symbol, or -1.
func (a *Account) Position(symbol string) int {
	for i := range a.OpenPositions {
		if a.OpenPositions[i].Symbol == symbol {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand out of the store.
func (a *Account) Clone() Account {
	out := *a
	out.Trades = append([]Trade{}, a.Trades...)
	out.OpenPositions = append([]OpenPosition{}, a.OpenPositions...)
	out.RoundTrips = append([]RoundTrip{}, a.RoundTrips...)
	return out
}

// Session is a snapshot of one trading competition ("group").
type Session struct {
	ID             string             `json:"group_id"`
	Name           string             `json:"name"`
	CreatorID      string             `json:"creator_id"`
	Symbols        []string           `json:"stocks"`
	PerUserCoins   decimal.Decimal    `json:"per_user_coins"`
	Duration       int                `json:"duration"`
	ActiveDuration int                `json:"active_duration"`
	State          State              `json:"state"`
	StartedAt      *time.Time         `json:"started_at"`
	EndedAt        *time.Time         `json:"ended_at"`
	Members        []string           `json:"members"`
	Accounts       map[string]Account `json:"user_data"`
}

// LeaderboardEntry is one row of a session ranking.
type LeaderboardEntry struct {
	UserID   string          `json:"user_id"`
	UserName string          `json:"user_name"`
	MTM      decimal.Decimal `json:"mtm"`
}

// Positions is the open/closed position view of one account.
type Positions struct {
	Open   []OpenPosition `json:"open_positions"`
	Closed []RoundTrip    `json:"closed_positions"`
}

// SymbolPnL is the per-instrument P&L breakdown of one account.
type SymbolPnL struct {
	Holdings      int64           `json:"holdings"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	Position      *OpenPosition   `json:"op,omitempty"`
}

// Candle is one OHLC bucket.
type Candle struct {
	Timestamp int64           `json:"timestamp"` // bucket start, unix seconds
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
}

// Tick is the price snapshot consumed by one clock step.
type Tick struct {
	SessionID string                     `json:"group_id"`
	Index     int                        `json:"tick"`
	Prices    map[string]decimal.Decimal `json:"prices"`
}
