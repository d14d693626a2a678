// Package ledger applies executed trades to a session account and revalues
// its open positions. It holds no locks and performs no I/O; callers own
// synchronization and pre-trade validation.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/papertrade/session-engine/internal/model"
)

// Apply appends t to the account history, updates positions and moves coins.
//
// BUY merges into the existing lot for the symbol (volume-weighted entry
// price) or opens a new long lot. SELL closes min(t.Quantity, lot quantity)
// of the single lot for the symbol and returns the emitted round trip. A SELL
// with no lot leaves positions untouched and returns nil; the store rejects
// such orders before they reach here.
func Apply(acct *model.Account, t model.Trade) *model.RoundTrip {
	acct.Trades = append(acct.Trades, t)

	var rt *model.RoundTrip
	switch t.Direction {
	case model.Buy:
		openOrMerge(acct, t)
	case model.Sell:
		rt = reduce(acct, t)
	}

	notional := Notional(t.Price, t.Quantity)
	if t.Direction == model.Buy {
		acct.AvailableCoins = acct.AvailableCoins.Sub(notional)
	} else {
		acct.AvailableCoins = acct.AvailableCoins.Add(notional)
	}
	return rt
}

func openOrMerge(acct *model.Account, t model.Trade) {
	if i := acct.Position(t.Symbol); i >= 0 {
		pos := &acct.OpenPositions[i]
		total := pos.Quantity + t.Quantity
		cost := Notional(pos.EntryPrice, pos.Quantity).Add(Notional(t.Price, t.Quantity))
		pos.EntryPrice = cost.Div(decimal.NewFromInt(total))
		pos.Quantity = total
		return
	}
	acct.OpenPositions = append(acct.OpenPositions, model.OpenPosition{
		UserID:       t.UserID,
		Symbol:       t.Symbol,
		Quantity:     t.Quantity,
		EntryPrice:   t.Price,
		EntryTime:    t.Timestamp,
		Direction:    model.Buy,
		CurrentPrice: t.Price,
		PnL:          decimal.Zero,
	})
}

func reduce(acct *model.Account, t model.Trade) *model.RoundTrip {
	i := acct.Position(t.Symbol)
	if i < 0 {
		return nil
	}
	pos := &acct.OpenPositions[i]

	closed := min(t.Quantity, pos.Quantity)
	rt := model.RoundTrip{
		UserID:     t.UserID,
		Symbol:     t.Symbol,
		Quantity:   closed,
		EntryPrice: pos.EntryPrice,
		EntryTime:  pos.EntryTime,
		ExitPrice:  t.Price,
		ExitTime:   t.Timestamp,
		Direction:  pos.Direction,
		PnL:        RealizedPnL(pos.Direction, pos.EntryPrice, t.Price, closed),
	}
	acct.RoundTrips = append(acct.RoundTrips, rt)

	if pos.Quantity > t.Quantity {
		pos.Quantity -= t.Quantity
	} else {
		acct.OpenPositions = append(acct.OpenPositions[:i], acct.OpenPositions[i+1:]...)
	}
	return &rt
}

// Revalue marks every open position to prices and recomputes MTM as realized
// plus unrealized P&L. Positions whose symbol is absent from prices keep
// their previous mark.
func Revalue(acct *model.Account, prices map[string]decimal.Decimal) {
	for i := range acct.OpenPositions {
		pos := &acct.OpenPositions[i]
		if p, ok := prices[pos.Symbol]; ok {
			pos.CurrentPrice = p
		}
		// Long only: unrealized P&L needs no direction branch.
		pos.PnL = pos.CurrentPrice.Sub(pos.EntryPrice).Mul(decimal.NewFromInt(pos.Quantity))
	}
	acct.MTM = MTM(acct)
}

// MTM sums realized round-trip P&L and unrealized open-position P&L.
func MTM(acct *model.Account) decimal.Decimal {
	total := decimal.Zero
	for _, rt := range acct.RoundTrips {
		total = total.Add(rt.PnL)
	}
	for _, op := range acct.OpenPositions {
		total = total.Add(op.PnL)
	}
	return total
}

// RealizedPnL is (exit - entry) * qty for longs and the negation for shorts.
func RealizedPnL(dir model.Direction, entry, exit decimal.Decimal, qty int64) decimal.Decimal {
	pnl := exit.Sub(entry).Mul(decimal.NewFromInt(qty))
	if dir != model.Buy {
		return pnl.Neg()
	}
	return pnl
}

// Notional returns price * qty.
func Notional(price decimal.Decimal, qty int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty))
}
